package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
)

// frameInput collects the flags shared by commands that read a frame.
type frameInput struct {
	file string
	raw  bool
}

func (in *frameInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.file, "file", "", "read the frame from a file instead of an argument")
	cmd.Flags().BoolVar(&in.raw, "raw", false, "the file or stdin holds binary bytes rather than hex")
}

// read returns the frame from args[0], --file or stdin, in that order.
func (in *frameInput) read(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) > 0 {
		if in.file != "" {
			return nil, errors.New("give either a hex argument or --file, not both")
		}
		return parseHexFrame(strings.Join(args, ""))
	}

	var data []byte
	var err error
	if in.file != "" {
		data, err = os.ReadFile(in.file)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if in.raw {
		return data, nil
	}
	return parseHexFrame(string(data))
}

// parseHexFrame decodes hex text, ignoring whitespace, colons and an
// optional 0x prefix.
func parseHexFrame(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ':' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return b, nil
}
