package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a packet template",
	Long: `Validate a packet template (JSON or YAML) without printing the frame.

This is useful for pre-checking templates kept alongside test fixtures.
File format is auto-detected from extension (.json, .yaml, .yml).

Examples:
  pktcraft validate -f hello.json
  pktcraft validate -f hello.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), validateTemplateFile)
	},
}

var validateTemplateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateTemplateFile, "file", "f", "",
		"packet template file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(w io.Writer, path string) error {
	p, err := buildFromTemplate(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	_, err = fmt.Fprintf(w, "VALID: %d layer(s), %d bytes\n", p.Len(), p.WireLength())
	return err
}
