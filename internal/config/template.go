package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/pkg/layers"
)

// ErrInvalidTemplate is returned for packet templates that cannot be built.
var ErrInvalidTemplate = errors.New("pktcraft: invalid template")

// Template describes a packet as an ordered list of layers, outermost first.
// Each layer is a map with a "type" key naming its kind; the remaining keys
// are that kind's builder fields. Length and checksum keys are accepted
// and ignored since they are recomputed on build.
//
//	layers:
//	  - type: ethernet
//	    dst: de:ad:be:ef:c0:fe
//	  - type: ipv4
//	    src: 127.0.0.1
//	    dst: 127.0.0.2
//	    protocol: udp
//	  - type: udp
//	    dst_port: 1337
//	  - type: payload
//	    data: hello world!
type Template struct {
	Layers []map[string]interface{} `yaml:"layers" json:"layers"`
}

// derivedKeys lists per-kind keys that Update owns.
var derivedKeys = map[layers.Kind][]string{
	layers.KindIPv4: {"total_length", "checksum", "ihl"},
	layers.KindIPv6: {"payload_length"},
	layers.KindUDP:  {"length", "checksum"},
	layers.KindTCP:  {"checksum", "data_offset"},
}

// LoadTemplate reads a template file. Files ending in .json are parsed as
// JSON, .pb as a binary google.protobuf.Struct and everything else as YAML.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	format := "yaml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".pb":
		format = "protobuf"
	}
	return ParseTemplate(data, format)
}

// ParseTemplate parses a template in the given format ("yaml", "json" or
// "protobuf").
func ParseTemplate(data []byte, format string) (*Template, error) {
	t := &Template{}
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, t)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, t)
	case "protobuf", "pb":
		t, err = unmarshalProtoTemplate(data)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidTemplate, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if len(t.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrInvalidTemplate)
	}
	return t, nil
}

// Build constructs the template's layers. Derived fields are left zero.
func (t *Template) Build() ([]layers.Layer, error) {
	out := make([]layers.Layer, 0, len(t.Layers))
	for i, entry := range t.Layers {
		l, err := buildLayer(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %w", ErrInvalidTemplate, i, err)
		}
		out = append(out, l)
	}
	return out, nil
}

type payloadFields struct {
	Tag  string `mapstructure:"tag"`
	Data string `mapstructure:"data"`
	Hex  []byte `mapstructure:"hex"`
}

func (s payloadFields) bytes() []byte {
	if s.Hex != nil {
		return s.Hex
	}
	return []byte(s.Data)
}

func buildLayer(entry map[string]interface{}) (layers.Layer, error) {
	name, ok := entry["type"].(string)
	if !ok {
		return nil, errors.New(`missing "type"`)
	}
	kind, err := layers.ParseKind(name)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(entry))
	for k, v := range entry {
		fields[k] = v
	}
	delete(fields, "type")
	for _, k := range derivedKeys[kind] {
		delete(fields, k)
	}

	switch kind {
	case layers.KindEthernet:
		var cfg layers.EthernetConfig
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewEthernet(cfg), nil
	case layers.KindDot1Q:
		var cfg layers.Dot1QConfig
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewDot1Q(cfg)
	case layers.KindIPv4:
		var cfg layers.IPv4Config
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewIPv4(cfg)
	case layers.KindIPv6:
		var cfg layers.IPv6Config
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewIPv6(cfg)
	case layers.KindUDP:
		var cfg layers.UDPConfig
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewUDP(cfg), nil
	case layers.KindTCP:
		var cfg layers.TCPConfig
		if err := decodeFields(fields, &cfg); err != nil {
			return nil, err
		}
		return layers.NewTCP(cfg)
	case layers.KindPayload:
		var s payloadFields
		if err := decodeFields(fields, &s); err != nil {
			return nil, err
		}
		if s.Tag != "" {
			return nil, errors.New(`"tag" is only valid on custom layers`)
		}
		return layers.NewPayload(s.bytes()), nil
	case layers.KindCustom:
		var s payloadFields
		if err := decodeFields(fields, &s); err != nil {
			return nil, err
		}
		return layers.NewCustom(s.Tag, s.bytes()), nil
	}
	return nil, fmt.Errorf("kind %s cannot be templated", kind)
}

func decodeFields(fields map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToFieldHook,
			mapstructure.TextUnmarshallerHookFunc(),
			numberRangeHook,
		),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

var (
	etherTypeType  = reflect.TypeOf(layers.EtherType(0))
	ipProtocolType = reflect.TypeOf(layers.IPProtocol(0))
	tcpFlagsType   = reflect.TypeOf(layers.TCPFlags(0))
	ipv4FlagsType  = reflect.TypeOf(layers.IPv4Flags(0))
	tcpOptionType  = reflect.TypeOf(layers.TCPOption{})
	bytesType      = reflect.TypeOf([]byte(nil))
)

// stringToFieldHook parses the symbolic spellings of enum fields, TCP
// option strings and hex byte strings.
func stringToFieldHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	switch t {
	case etherTypeType:
		return layers.ParseEtherType(s)
	case ipProtocolType:
		return layers.ParseIPProtocol(s)
	case tcpFlagsType:
		return layers.ParseTCPFlags(s)
	case ipv4FlagsType:
		return layers.ParseIPv4Flags(s)
	case tcpOptionType:
		return ParseTCPOption(s)
	case bytesType:
		return parseHex(s)
	}
	return data, nil
}

// numberRangeHook rejects numbers that do not fit the target field instead
// of letting them wrap.
func numberRangeHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	v := reflect.ValueOf(data)
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
	default:
		return data, nil
	}
	var n float64
	switch f.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n = float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		n = v.Float()
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("%v is not a whole number", data)
		}
	default:
		return data, nil
	}
	if n < 0 || reflect.Zero(t).OverflowUint(uint64(n)) {
		return nil, fmt.Errorf("%v out of range for %s", data, t)
	}
	return data, nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// ParseTCPOption parses the template spelling of a TCP option: "eol",
// "nop", "sack_permitted", "mss=1460", "wscale=7", "timestamps=1,2",
// "sack=100-200,300-400" or "kind30=hexdata" for anything else.
func ParseTCPOption(s string) (layers.TCPOption, error) {
	name, value, _ := strings.Cut(strings.TrimSpace(s), "=")
	name = strings.ToLower(name)

	switch name {
	case "eol":
		return layers.TCPOption{Kind: layers.TCPOptionEndList}, nil
	case "nop":
		return layers.NopOption(), nil
	case "sack_permitted":
		return layers.SACKPermittedOption(), nil
	case "mss":
		n, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
		}
		return layers.MSSOption(uint16(n)), nil
	case "wscale":
		n, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
		}
		return layers.WindowScaleOption(uint8(n)), nil
	case "timestamps":
		a, b, ok := strings.Cut(value, ",")
		if !ok {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: want val,echo", s)
		}
		val, err1 := strconv.ParseUint(a, 0, 32)
		echo, err2 := strconv.ParseUint(b, 0, 32)
		if err := errors.Join(err1, err2); err != nil {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
		}
		return layers.TimestampsOption(uint32(val), uint32(echo)), nil
	case "sack":
		var blocks []layers.SACKBlock
		for _, blk := range strings.Split(value, ",") {
			l, r, ok := strings.Cut(blk, "-")
			if !ok {
				return layers.TCPOption{}, fmt.Errorf("tcp option %q: want left-right", s)
			}
			left, err1 := strconv.ParseUint(l, 0, 32)
			right, err2 := strconv.ParseUint(r, 0, 32)
			if err := errors.Join(err1, err2); err != nil {
				return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
			}
			blocks = append(blocks, layers.SACKBlock{Left: uint32(left), Right: uint32(right)})
		}
		return layers.SACKOption(blocks...), nil
	}

	if rest, ok := strings.CutPrefix(name, "kind"); ok {
		k, err := strconv.ParseUint(rest, 10, 8)
		if err != nil {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
		}
		data, err := parseHex(value)
		if err != nil {
			return layers.TCPOption{}, fmt.Errorf("tcp option %q: %w", s, err)
		}
		return layers.TCPOption{Kind: layers.TCPOptionKind(k), Data: data}, nil
	}
	return layers.TCPOption{}, fmt.Errorf("unknown tcp option %q", s)
}

// FormatTCPOption is the inverse of ParseTCPOption.
func FormatTCPOption(o layers.TCPOption) string {
	switch {
	case o.Kind == layers.TCPOptionEndList && len(o.Data) == 0:
		return "eol"
	case o.Kind == layers.TCPOptionNop && len(o.Data) == 0:
		return "nop"
	case o.Kind == layers.TCPOptionSACKPermitted && len(o.Data) == 0:
		return "sack_permitted"
	case o.Kind == layers.TCPOptionMSS && len(o.Data) == 2:
		return fmt.Sprintf("mss=%d", uint16(o.Data[0])<<8|uint16(o.Data[1]))
	case o.Kind == layers.TCPOptionWindowScale && len(o.Data) == 1:
		return fmt.Sprintf("wscale=%d", o.Data[0])
	case o.Kind == layers.TCPOptionTimestamps && len(o.Data) == 8:
		return fmt.Sprintf("timestamps=%d,%d", be32(o.Data), be32(o.Data[4:]))
	case o.Kind == layers.TCPOptionSACK && len(o.Data) > 0 && len(o.Data)%8 == 0:
		blocks := make([]string, 0, len(o.Data)/8)
		for b := o.Data; len(b) > 0; b = b[8:] {
			blocks = append(blocks, fmt.Sprintf("%d-%d", be32(b), be32(b[4:])))
		}
		return "sack=" + strings.Join(blocks, ",")
	}
	return fmt.Sprintf("kind%d=%x", uint8(o.Kind), o.Data)
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// TemplateFrom renders layers as a template. Derived fields are included
// for reference; Build ignores them.
func TemplateFrom(ls []layers.Layer) *Template {
	t := &Template{Layers: make([]map[string]interface{}, 0, len(ls))}
	for _, l := range ls {
		t.Layers = append(t.Layers, describe(l))
	}
	return t
}

func describe(l layers.Layer) map[string]interface{} {
	kind, _ := l.Kind().MarshalText()
	m := map[string]interface{}{"type": string(kind)}
	switch l := l.(type) {
	case *layers.Ethernet:
		m["dst"] = l.Dst.String()
		m["src"] = l.Src.String()
		m["ether_type"] = l.EtherType.String()
	case *layers.Dot1Q:
		m["priority"] = l.Priority()
		m["drop_eligible"] = l.DropEligible()
		m["vlan_id"] = l.VLANID()
		m["ether_type"] = l.EtherType.String()
	case *layers.IPv4:
		m["dscp"] = l.DSCP()
		m["ecn"] = l.ECN()
		m["id"] = l.ID
		m["flags"] = l.Flags().String()
		m["fragment_offset"] = l.FragmentOffset()
		m["ttl"] = l.TTL
		m["protocol"] = l.Protocol.String()
		m["src"] = l.Src.String()
		m["dst"] = l.Dst.String()
		if opts := l.Options(); len(opts) > 0 {
			m["options"] = hex.EncodeToString(opts)
		}
		m["total_length"] = l.TotalLength
		m["checksum"] = l.Checksum
	case *layers.IPv6:
		m["traffic_class"] = l.TrafficClass
		m["flow_label"] = l.FlowLabel()
		m["next_header"] = l.NextHeader.String()
		m["hop_limit"] = l.HopLimit
		m["src"] = l.Src.String()
		m["dst"] = l.Dst.String()
		m["payload_length"] = l.PayloadLength
	case *layers.UDP:
		m["src_port"] = l.SrcPort
		m["dst_port"] = l.DstPort
		m["length"] = l.Length
		m["checksum"] = l.Checksum
	case *layers.TCP:
		m["src_port"] = l.SrcPort
		m["dst_port"] = l.DstPort
		m["seq"] = l.Seq
		m["ack"] = l.Ack
		m["flags"] = l.Flags().String()
		m["window"] = l.Window
		m["urgent"] = l.Urgent
		if opts, err := l.Options(); err == nil && len(opts) > 0 {
			strs := make([]string, 0, len(opts))
			for _, o := range opts {
				strs = append(strs, FormatTCPOption(o))
			}
			m["options"] = strs
		}
		m["checksum"] = l.Checksum
	case *layers.Payload:
		m["hex"] = hex.EncodeToString(l.Data)
	case *layers.Custom:
		m["tag"] = l.Tag
		m["hex"] = hex.EncodeToString(l.Data)
	}
	return m
}
