package cmd

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/pkg/packet"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a frame from a template",
	Long: `Build a frame from a YAML or JSON template, fill in every length and
checksum field and print it as hex. File format is auto-detected from the
extension (.json, .pb, .yaml, .yml).

Examples:
  pktcraft build -f hello.yml
  pktcraft build -f syn.json -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := "hex"
		if buildOutput != "" {
			format = buildOutput
		}
		return runBuild(cmd.OutOrStdout(), buildTemplateFile, format)
	},
}

var (
	buildTemplateFile string
	buildOutput       string
)

func init() {
	buildCmd.Flags().StringVarP(&buildTemplateFile, "file", "f", "",
		"packet template file (required)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "",
		"output format: hex, text, json, yaml or protobuf (default hex)")
	buildCmd.MarkFlagRequired("file")
}

func buildFromTemplate(path string) (*packet.Packet, error) {
	tmpl, err := config.LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	ls, err := tmpl.Build()
	if err != nil {
		return nil, err
	}
	p, err := packet.Build(ls...)
	if err != nil {
		return nil, fmt.Errorf("build failed: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"template": path,
		"layers":   p.Len(),
		"bytes":    p.WireLength(),
	}).Debug("frame built")
	return p, nil
}

func runBuild(w io.Writer, path, format string) error {
	p, err := buildFromTemplate(path)
	if err != nil {
		return err
	}
	switch format {
	case "hex":
		_, err = fmt.Fprintln(w, hex.EncodeToString(p.ToBytes()))
		return err
	case "text", "json", "yaml", "protobuf":
		return writePacket(w, p, format)
	}
	return fmt.Errorf("%w: output format %q (must be hex/text/json/yaml/protobuf)", config.ErrInvalidConfig, format)
}
