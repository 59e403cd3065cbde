// Package packet holds an ordered stack of protocol layers and the engines
// that operate on the whole stack: parsing, length/checksum update,
// verification and serialization.
package packet

import (
	"fmt"
	"slices"
	"strings"

	"firestige.xyz/pktcraft/pkg/layers"
)

// Packet exclusively owns an ordered list of layers, outermost first.
//
// Lengths and checksums are only consistent right after a successful Update.
// A Packet is not safe for concurrent mutation; use Clone to hand a copy to
// another goroutine.
type Packet struct {
	layers []layers.Layer
}

// New returns a packet holding ls in order. The packet takes ownership of
// the layers.
func New(ls ...layers.Layer) *Packet {
	p := &Packet{layers: make([]layers.Layer, 0, len(ls))}
	p.Append(ls...)
	return p
}

// Build assembles a packet from ls and runs Update on it.
func Build(ls ...layers.Layer) (*Packet, error) {
	p := New(ls...)
	if err := p.Update(); err != nil {
		return nil, err
	}
	return p, nil
}

// Append adds layers after the current innermost layer. Nil layers are ignored.
func (p *Packet) Append(ls ...layers.Layer) {
	for _, l := range ls {
		if l != nil {
			p.layers = append(p.layers, l)
		}
	}
}

// Layers returns the layers in order. The slice is a copy; the layers are not.
func (p *Packet) Layers() []layers.Layer {
	return slices.Clone(p.layers)
}

// Len returns the number of layers.
func (p *Packet) Len() int { return len(p.layers) }

// Layer returns the layer at index i, or nil when i is out of range.
func (p *Packet) Layer(i int) layers.Layer {
	if i < 0 || i >= len(p.layers) {
		return nil
	}
	return p.layers[i]
}

// FirstOf returns the outermost layer of kind k and its index, or nil and -1.
func (p *Packet) FirstOf(k layers.Kind) (layers.Layer, int) {
	for i, l := range p.layers {
		if l.Kind() == k {
			return l, i
		}
	}
	return nil, -1
}

// First returns the outermost layer of type T.
func First[T layers.Layer](p *Packet) (T, bool) {
	for _, l := range p.layers {
		if v, ok := l.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func first[T layers.Layer](p *Packet) T {
	v, _ := First[T](p)
	return v
}

func (p *Packet) Ethernet() *layers.Ethernet { return first[*layers.Ethernet](p) }
func (p *Packet) Dot1Q() *layers.Dot1Q       { return first[*layers.Dot1Q](p) }
func (p *Packet) IPv4() *layers.IPv4         { return first[*layers.IPv4](p) }
func (p *Packet) IPv6() *layers.IPv6         { return first[*layers.IPv6](p) }
func (p *Packet) UDP() *layers.UDP           { return first[*layers.UDP](p) }
func (p *Packet) TCP() *layers.TCP           { return first[*layers.TCP](p) }
func (p *Packet) Payload() *layers.Payload   { return first[*layers.Payload](p) }

// WireLength returns the total encoded size.
func (p *Packet) WireLength() int {
	n := 0
	for _, l := range p.layers {
		n += l.WireLength()
	}
	return n
}

// ToBytes encodes every layer in order. It does not call Update, so stale
// lengths and checksums are written as they are.
func (p *Packet) ToBytes() []byte {
	return p.AppendBytes(make([]byte, 0, p.WireLength()))
}

// AppendBytes appends the encoded packet to b.
func (p *Packet) AppendBytes(b []byte) []byte {
	for _, l := range p.layers {
		b = l.AppendTo(b)
	}
	return b
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	c := &Packet{layers: make([]layers.Layer, len(p.layers))}
	for i, l := range p.layers {
		c.layers[i] = l.Clone()
	}
	return c
}

// String returns one summary line per layer.
func (p *Packet) String() string {
	var sb strings.Builder
	for i, l := range p.layers {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d: %s", i, l)
	}
	return sb.String()
}
