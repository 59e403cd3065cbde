package packet

import (
	"fmt"

	"firestige.xyz/pktcraft/pkg/layers"
)

// Mismatch is a derived field whose stored value differs from what Update
// would write.
type Mismatch struct {
	Index int         `json:"index" yaml:"index"`
	Kind  layers.Kind `json:"kind" yaml:"kind"`
	Field string      `json:"field" yaml:"field"`
	Have  uint32      `json:"have" yaml:"have"`
	Want  uint32      `json:"want" yaml:"want"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("layer %d %s %s: have 0x%04x, want 0x%04x", m.Index, m.Kind, m.Field, m.Have, m.Want)
}

// Verify reports every length and checksum field that is inconsistent with
// the rest of the packet. The packet is not modified. A zero UDP checksum
// under IPv4 means "not computed" and is accepted.
func (p *Packet) Verify() ([]Mismatch, error) {
	fixed := p.Clone()
	if err := fixed.Update(); err != nil {
		return nil, err
	}

	var out []Mismatch
	check := func(i int, field string, have, want uint16) {
		if have != want {
			out = append(out, Mismatch{Index: i, Kind: p.layers[i].Kind(), Field: field, Have: uint32(have), Want: uint32(want)})
		}
	}

	for i, l := range p.layers {
		switch have := l.(type) {
		case *layers.IPv4:
			want := fixed.layers[i].(*layers.IPv4)
			check(i, "total_length", have.TotalLength, want.TotalLength)
			check(i, "checksum", have.Checksum, want.Checksum)
		case *layers.IPv6:
			want := fixed.layers[i].(*layers.IPv6)
			check(i, "payload_length", have.PayloadLength, want.PayloadLength)
		case *layers.UDP:
			want := fixed.layers[i].(*layers.UDP)
			check(i, "length", have.Length, want.Length)
			if have.Checksum != 0 || !p.underIPv4(i) {
				check(i, "checksum", have.Checksum, want.Checksum)
			}
		case *layers.TCP:
			want := fixed.layers[i].(*layers.TCP)
			check(i, "checksum", have.Checksum, want.Checksum)
		}
	}
	return out, nil
}

func (p *Packet) underIPv4(i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch p.layers[j].(type) {
		case *layers.IPv4:
			return true
		case *layers.IPv6:
			return false
		}
	}
	return false
}
