package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/pkg/packet"
)

// errMismatch makes verify exit non-zero when a frame has stale fields.
var errMismatch = errors.New("pktcraft: length or checksum mismatch")

var verifyCmd = &cobra.Command{
	Use:   "verify [hex]",
	Short: "Check the lengths and checksums of a frame",
	Long: `Decode a frame and report every length or checksum field that does not
match the rest of the frame. Exits with status 1 when any field is stale.
A zero UDP checksum over IPv4 means "not computed" and is accepted.

Examples:
  pktcraft verify --file capture.hex
  pktcraft verify -o json 0000000000000000000000000800450000...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := verifyIn.read(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		opts, err := verifyFlags.resolve(cmd)
		if err != nil {
			return err
		}
		return runVerify(cmd.OutOrStdout(), data, opts)
	},
}

var (
	verifyIn    frameInput
	verifyFlags decodeFlagSet
)

func init() {
	verifyIn.register(verifyCmd)
	verifyFlags.register(verifyCmd)
}

func runVerify(w io.Writer, data []byte, opts decodeOptions) error {
	p, err := decodeFrame(data, opts)
	if err != nil {
		return err
	}
	mismatches, err := p.Verify()
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	if err := writeMismatches(w, mismatches, opts.output); err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %d field(s)", errMismatch, len(mismatches))
	}
	return nil
}

func writeMismatches(w io.Writer, mismatches []packet.Mismatch, format string) error {
	if mismatches == nil {
		mismatches = []packet.Mismatch{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mismatches)
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(mismatches); err != nil {
			return err
		}
		return enc.Close()
	case "protobuf":
		list := make([]interface{}, 0, len(mismatches))
		for _, m := range mismatches {
			list = append(list, map[string]interface{}{
				"index": m.Index, "kind": m.Kind.String(), "field": m.Field, "have": m.Have, "want": m.Want,
			})
		}
		v, err := structpb.NewList(list)
		if err != nil {
			return err
		}
		b, err := proto.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}

	if len(mismatches) == 0 {
		_, err := fmt.Fprintln(w, "OK")
		return err
	}
	for _, m := range mismatches {
		if _, err := fmt.Fprintln(w, m); err != nil {
			return err
		}
	}
	return nil
}
