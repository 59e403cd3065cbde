package packet

import (
	"fmt"

	"firestige.xyz/pktcraft/pkg/layers"
)

const maxLength16 = 0xFFFF

// Update recomputes every derived length and checksum field.
//
//   - IPv4.TotalLength is the size of the IPv4 layer and everything after it.
//   - IPv6.PayloadLength is the size of everything after the IPv6 header.
//   - UDP.Length is the size of the UDP layer and everything after it.
//   - UDP and TCP checksums cover a pseudo-header taken from the nearest
//     preceding IPv4 or IPv6 layer, the transport header and all following
//     bytes. Transport layers with no network ancestor keep their checksum.
//   - IPv4 header checksums cover the header alone.
//
// Checksums are computed from the innermost layer outwards so a tunnelled
// inner packet is final before the outer checksums cover it.
//
// Every layer is validated and every length is range checked before any
// field is written; a failed Update leaves the packet untouched. Update is
// idempotent.
func (p *Packet) Update() error {
	for i, l := range p.layers {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}

	plan, err := p.planLengths()
	if err != nil {
		return err
	}
	for _, a := range plan {
		a.apply()
	}

	for i := len(p.layers) - 1; i >= 0; i-- {
		switch l := p.layers[i].(type) {
		case *layers.IPv4:
			l.Checksum = l.HeaderChecksum()
		case *layers.UDP:
			if ph, ok := p.pseudoHeader(i); ok {
				l.Checksum = l.ComputeChecksum(ph, p.encodeFrom(i+1))
			}
		case *layers.TCP:
			if ph, ok := p.pseudoHeader(i); ok {
				l.Checksum = l.ComputeChecksum(ph, p.encodeFrom(i+1))
			}
		}
	}
	return nil
}

type lengthAssignment struct {
	field *uint16
	value uint16
}

func (a lengthAssignment) apply() { *a.field = a.value }

// planLengths computes every length field without writing any of them.
func (p *Packet) planLengths() ([]lengthAssignment, error) {
	suffix := p.suffixLengths()
	var plan []lengthAssignment

	add := func(i int, field string, dst *uint16, n int) error {
		if n > maxLength16 {
			return fmt.Errorf("layer %d: %w", i, &layers.Error{
				Op:     "update",
				Kind:   p.layers[i].Kind(),
				Field:  field,
				Detail: fmt.Sprintf("%d exceeds %d", n, maxLength16),
				Err:    layers.ErrInvalidField,
			})
		}
		plan = append(plan, lengthAssignment{field: dst, value: uint16(n)})
		return nil
	}

	for i, l := range p.layers {
		var err error
		switch l := l.(type) {
		case *layers.IPv4:
			err = add(i, "total_length", &l.TotalLength, suffix[i])
		case *layers.IPv6:
			err = add(i, "payload_length", &l.PayloadLength, suffix[i+1])
		case *layers.UDP:
			err = add(i, "length", &l.Length, suffix[i])
		}
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// suffixLengths returns s where s[i] is the encoded size of layers i..n-1.
func (p *Packet) suffixLengths() []int {
	s := make([]int, len(p.layers)+1)
	for i := len(p.layers) - 1; i >= 0; i-- {
		s[i] = s[i+1] + p.layers[i].WireLength()
	}
	return s
}

// pseudoHeader builds the pseudo-header for the transport layer at index i
// from the nearest preceding network layer.
func (p *Packet) pseudoHeader(i int) (layers.PseudoHeader, bool) {
	length := p.suffixLengths()[i]
	for j := i - 1; j >= 0; j-- {
		switch n := p.layers[j].(type) {
		case *layers.IPv4:
			return n.PseudoHeader(n.Protocol, length), true
		case *layers.IPv6:
			return n.PseudoHeader(n.NextHeader, length), true
		}
	}
	return layers.PseudoHeader{}, false
}

func (p *Packet) encodeFrom(i int) []byte {
	var b []byte
	for _, l := range p.layers[i:] {
		b = l.AppendTo(b)
	}
	return b
}
