package cmd

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/log"
)

var updateCmd = &cobra.Command{
	Use:   "update [hex]",
	Short: "Recompute lengths and checksums of a frame",
	Long: `Decode a frame, recompute every length and checksum field and print the
result as hex.

Examples:
  pktcraft update 0000000000000000000000000800450000...
  pktcraft update --first-layer ipv6 --file packet.hex`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := updateIn.read(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		opts, err := updateFlags.resolve(cmd)
		if err != nil {
			return err
		}
		return runUpdate(cmd.OutOrStdout(), data, opts)
	},
}

var (
	updateIn    frameInput
	updateFlags decodeFlagSet
)

func init() {
	updateIn.register(updateCmd)
	updateCmd.Flags().StringVar(&updateFlags.firstLayer, "first-layer", "", "kind of the outermost layer (default from config: ethernet)")
	updateCmd.Flags().IntVar(&updateFlags.maxLayers, "max-layers", 0, "maximum number of layers to decode (default from config: 16)")
}

func runUpdate(w io.Writer, data []byte, opts decodeOptions) error {
	p, err := decodeFrame(data, opts)
	if err != nil {
		return err
	}
	if err := p.Update(); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	out := p.ToBytes()

	logger := log.GetLogger()
	if logger.IsDebugEnabled() {
		changed := 0
		for i := range out {
			if out[i] != data[i] {
				changed++
			}
		}
		logger.WithField("changed_bytes", changed).Debug("frame updated")
	}

	_, err = fmt.Fprintln(w, hex.EncodeToString(out))
	return err
}
