package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	gl "github.com/google/gopacket/layers"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/pkg/layers"
	"firestige.xyz/pktcraft/pkg/packet"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a frame and print its layers",
	Long: `Decode a frame into protocol layers and print them.

The text output lists one layer per line. The json, yaml and protobuf
outputs are packet templates that "pktcraft build" accepts; protobuf is a
binary google.protobuf.Struct.

Examples:
  pktcraft decode deadbeefc0fe0000000000000800450000...
  pktcraft decode --file frame.hex --output yaml
  pktcraft decode --first-layer ipv4 < packet.hex`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := decodeIn.read(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		opts, err := decodeFlags.resolve(cmd)
		if err != nil {
			return err
		}
		return runDecode(cmd.OutOrStdout(), data, opts)
	},
}

var (
	decodeIn    frameInput
	decodeFlags decodeFlagSet
)

// decodeFlagSet holds parse and output flags; unset flags fall back to the
// loaded configuration.
type decodeFlagSet struct {
	firstLayer string
	maxLayers  int
	output     string
}

type decodeOptions struct {
	firstLayer layers.Kind
	maxLayers  int
	output     string
}

func (f *decodeFlagSet) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.firstLayer, "first-layer", "", "kind of the outermost layer (default from config: ethernet)")
	cmd.Flags().IntVar(&f.maxLayers, "max-layers", 0, "maximum number of layers to decode (default from config: 16)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output format: text, json, yaml or protobuf (default from config: text)")
}

func (f *decodeFlagSet) resolve(cmd *cobra.Command) (decodeOptions, error) {
	var c config.Config
	if cfg != nil {
		c = *cfg
	}
	if cmd.Flags().Changed("first-layer") {
		c.Decode.FirstLayer = f.firstLayer
	}
	if cmd.Flags().Changed("max-layers") {
		c.Decode.MaxLayers = f.maxLayers
	}
	if cmd.Flags().Changed("output") {
		c.Output.Format = f.output
	}
	if err := c.ValidateAndApplyDefaults(); err != nil {
		return decodeOptions{}, err
	}
	return decodeOptions{
		firstLayer: c.Decode.FirstLayerKind(),
		maxLayers:  c.Decode.MaxLayers,
		output:     c.Output.Format,
	}, nil
}

func init() {
	decodeIn.register(decodeCmd)
	decodeFlags.register(decodeCmd)
}

func decodeFrame(data []byte, opts decodeOptions) (*packet.Packet, error) {
	p, err := packet.Decode(data,
		packet.WithFirstLayer(opts.firstLayer),
		packet.WithMaxLayers(opts.maxLayers),
	)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"bytes":  len(data),
		"layers": p.Len(),
	}).Debug("frame decoded")
	return p, nil
}

func runDecode(w io.Writer, data []byte, opts decodeOptions) error {
	p, err := decodeFrame(data, opts)
	if err != nil {
		return err
	}
	return writePacket(w, p, opts.output)
}

// writePacket prints p as text lines or as a json, yaml or protobuf
// template.
func writePacket(w io.Writer, p *packet.Packet, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(config.TemplateFrom(p.Layers()))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(config.TemplateFrom(p.Layers())); err != nil {
			return err
		}
		return enc.Close()
	case "protobuf":
		b, err := config.TemplateFrom(p.Layers()).MarshalProto()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}

	for i, l := range p.Layers() {
		line := fmt.Sprintf("%d: %s", i, l)
		if hint := protocolHint(l); hint != "" {
			line += "  (" + hint + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d bytes, %d layers\n", p.WireLength(), p.Len())
	return err
}

// protocolHint names the next protocol or the well-known ports using
// gopacket's registries.
func protocolHint(l layers.Layer) string {
	switch l := l.(type) {
	case *layers.Ethernet:
		return "next " + gl.EthernetType(l.EtherType).String()
	case *layers.Dot1Q:
		return "next " + gl.EthernetType(l.EtherType).String()
	case *layers.IPv4:
		return "next " + gl.IPProtocol(l.Protocol).String()
	case *layers.IPv6:
		return "next " + gl.IPProtocol(l.NextHeader).String()
	case *layers.UDP:
		return gl.UDPPort(l.SrcPort).String() + " > " + gl.UDPPort(l.DstPort).String()
	case *layers.TCP:
		return gl.TCPPort(l.SrcPort).String() + " > " + gl.TCPPort(l.DstPort).String()
	}
	return ""
}
