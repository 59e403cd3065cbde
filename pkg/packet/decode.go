package packet

import (
	"fmt"

	"firestige.xyz/pktcraft/pkg/layers"
)

// DefaultMaxLayers bounds the number of layers a parse produces.
const DefaultMaxLayers = 16

type decodeOptions struct {
	first     layers.Kind
	registry  *layers.Registry
	maxLayers int
}

// DecodeOption customises Decode.
type DecodeOption func(*decodeOptions)

// WithFirstLayer sets the kind of the outermost layer. Default Ethernet.
func WithFirstLayer(k layers.Kind) DecodeOption {
	return func(o *decodeOptions) { o.first = k }
}

// WithRegistry sets the dispatch registry. Default layers.DefaultRegistry.
func WithRegistry(r *layers.Registry) DecodeOption {
	return func(o *decodeOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithMaxLayers bounds the number of layers, the trailing payload included.
// Values below 1 are raised to 1, which decodes everything as a Payload.
func WithMaxLayers(n int) DecodeOption {
	return func(o *decodeOptions) { o.maxLayers = max(n, 1) }
}

// FromBytes is Decode with default options.
func FromBytes(data []byte) (*Packet, error) {
	return Decode(data)
}

// Decode parses data into a packet.
//
// Starting at the first-layer kind, each layer's decoder consumes its header
// and reports a discriminant; the registry maps (kind, discriminant) to the
// next decoder. When the discriminant is absent or unregistered, or the
// layer budget is reached, the remaining bytes become a single Payload,
// which may be empty. Any decoder error aborts the parse; no partial packet
// is returned. Decoded layers copy what they keep, so data may be reused.
func Decode(data []byte, opts ...DecodeOption) (*Packet, error) {
	o := decodeOptions{
		first:     layers.KindEthernet,
		registry:  layers.DefaultRegistry,
		maxLayers: DefaultMaxLayers,
	}
	for _, opt := range opts {
		opt(&o)
	}

	fn, ok := o.registry.Decoder(o.first)
	if !ok {
		return nil, &layers.Error{
			Op:     "decode",
			Kind:   o.first,
			Detail: "no decoder registered for first layer",
			Err:    layers.ErrInvalidField,
		}
	}

	p := &Packet{}
	rest := data
	for fn != nil && len(p.layers) < o.maxLayers-1 {
		l, n, err := fn(rest)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", len(p.layers), err)
		}
		if l == nil {
			return nil, fmt.Errorf("layer %d: decoder returned no layer: %w", len(p.layers), layers.ErrInvalidField)
		}
		if n < 0 || n > len(rest) {
			return nil, &layers.Error{
				Op:     "decode",
				Kind:   l.Kind(),
				Detail: fmt.Sprintf("decoder consumed %d of %d bytes", n, len(rest)),
				Err:    layers.ErrInvalidField,
			}
		}
		p.layers = append(p.layers, l)
		rest = rest[n:]

		if l.Kind() == layers.KindPayload {
			return p, nil
		}
		fn = next(o.registry, l, n)
	}

	payload, _, _ := layers.DecodePayload(rest)
	p.layers = append(p.layers, payload)
	return p, nil
}

// next returns the decoder for the layer after l, or nil to end dispatch.
func next(r *layers.Registry, l layers.Layer, consumed int) layers.DecodeFunc {
	if consumed == 0 {
		return nil
	}
	disc, ok := l.NextDiscriminant()
	if !ok {
		return nil
	}
	fn, ok := r.Lookup(l.Kind(), disc)
	if !ok {
		return nil
	}
	return fn
}
