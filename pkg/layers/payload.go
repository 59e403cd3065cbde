package layers

import (
	"encoding/hex"
	"fmt"
)

// Payload is opaque application data. It is the fallback when no decoder is
// registered for a discriminant and may be empty.
type Payload struct {
	Data []byte
}

// DecodePayload consumes all of data. It never fails.
func DecodePayload(data []byte) (Layer, int, error) {
	return &Payload{Data: cloneBytes(data)}, len(data), nil
}

func (p *Payload) Kind() Kind                       { return KindPayload }
func (p *Payload) WireLength() int                  { return len(p.Data) }
func (p *Payload) AppendTo(b []byte) []byte         { return append(b, p.Data...) }
func (p *Payload) Encode() []byte                   { return encode(p) }
func (p *Payload) NextDiscriminant() (uint32, bool) { return 0, false }
func (p *Payload) Validate() error                  { return nil }

func (p *Payload) Clone() Layer {
	return &Payload{Data: cloneBytes(p.Data)}
}

func (p *Payload) String() string {
	return fmt.Sprintf("Payload %d bytes %s", len(p.Data), preview(p.Data))
}

func (p *Payload) sealed() {}

// Custom carries a protocol that is not modelled by this package. Tag names
// the protocol; Data is its complete wire encoding.
type Custom struct {
	Tag  string
	Data []byte
	// Next, when set, is reported by NextDiscriminant so custom layers can
	// hand off to further registered decoders.
	Next *uint32
}

// CustomDecoder returns a DecodeFunc that wraps the first headerLen bytes
// of its input in a Custom layer tagged tag. A negative headerLen consumes
// everything. next, when non-nil, extracts the next-layer discriminant from
// the header bytes.
func CustomDecoder(tag string, headerLen int, next func(hdr []byte) (uint32, bool)) DecodeFunc {
	return func(data []byte) (Layer, int, error) {
		n := headerLen
		if n < 0 {
			n = len(data)
		}
		if len(data) < n {
			return nil, 0, truncated(KindCustom, tag, n, len(data))
		}
		c := &Custom{Tag: tag, Data: cloneBytes(data[:n])}
		if next != nil {
			if d, ok := next(c.Data); ok {
				c.Next = &d
			}
		}
		return c, n, nil
	}
}

func (c *Custom) Kind() Kind               { return KindCustom }
func (c *Custom) WireLength() int          { return len(c.Data) }
func (c *Custom) AppendTo(b []byte) []byte { return append(b, c.Data...) }
func (c *Custom) Encode() []byte           { return encode(c) }
func (c *Custom) Validate() error          { return nil }

func (c *Custom) NextDiscriminant() (uint32, bool) {
	if c.Next == nil {
		return 0, false
	}
	return *c.Next, true
}

func (c *Custom) Clone() Layer {
	out := &Custom{Tag: c.Tag, Data: cloneBytes(c.Data)}
	if c.Next != nil {
		n := *c.Next
		out.Next = &n
	}
	return out
}

func (c *Custom) String() string {
	return fmt.Sprintf("Custom(%s) %d bytes %s", c.Tag, len(c.Data), preview(c.Data))
}

func (c *Custom) sealed() {}

func preview(b []byte) string {
	const previewLen = 16
	if len(b) <= previewLen {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:previewLen]) + "..."
}
