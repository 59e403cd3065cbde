// Package layers implements the protocol layer variants of a packet and the
// dispatch registry that chains their decoders together.
//
// The set of variants is closed: Ethernet, Dot1Q, IPv4, IPv6, UDP, TCP,
// Payload and Custom. Custom is the extension point for protocols that are
// not modelled here; it carries a caller-chosen tag and opaque bytes.
package layers

import (
	"fmt"
	"strings"
)

// Kind identifies a layer variant.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindEthernet
	KindDot1Q
	KindIPv4
	KindIPv6
	KindUDP
	KindTCP
	KindPayload
	KindCustom
)

var kindNames = map[Kind]string{
	KindInvalid:  "Invalid",
	KindEthernet: "Ethernet",
	KindDot1Q:    "Dot1Q",
	KindIPv4:     "IPv4",
	KindIPv6:     "IPv6",
	KindUDP:      "UDP",
	KindTCP:      "TCP",
	KindPayload:  "Payload",
	KindCustom:   "Custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind converts a case-insensitive kind name ("ethernet", "ipv4", ...)
// to a Kind. "ether", "eth", "raw" and "vlan" are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ethernet", "ether", "eth":
		return KindEthernet, nil
	case "dot1q", "vlan":
		return KindDot1Q, nil
	case "ipv4", "ip":
		return KindIPv4, nil
	case "ipv6":
		return KindIPv6, nil
	case "udp":
		return KindUDP, nil
	case "tcp":
		return KindTCP, nil
	case "payload", "raw":
		return KindPayload, nil
	case "custom":
		return KindCustom, nil
	default:
		return KindInvalid, fmt.Errorf("unknown layer kind: %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be read
// from yaml/json/mapstructure sources.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(k.String())), nil
}

// Layer is one protocol header or payload unit inside a packet.
//
// Layers never reference their neighbours. Everything that depends on
// surrounding layers (lengths, pseudo-header checksums) is computed by the
// owning packet.
type Layer interface {
	Kind() Kind

	// WireLength is the number of bytes AppendTo currently writes.
	WireLength() int

	// AppendTo appends the wire encoding of the layer to b. It never fails.
	AppendTo(b []byte) []byte

	// Encode returns the wire encoding in a new slice.
	Encode() []byte

	// NextDiscriminant reports the value that selects the next layer's
	// decoder. ok is false for layers that end dispatch.
	NextDiscriminant() (disc uint32, ok bool)

	// Validate reports field values that were set directly on the struct
	// and fall outside the protocol's legal range.
	Validate() error

	// Clone returns a deep copy.
	Clone() Layer

	String() string

	sealed()
}

func encode(l Layer) []byte {
	return l.AppendTo(make([]byte, 0, l.WireLength()))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
