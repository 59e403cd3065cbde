package layers

import (
	"fmt"
	"sort"
	"sync"
)

// DecodeFunc decodes one layer from the start of data and reports how many
// bytes it consumed.
type DecodeFunc func(data []byte) (Layer, int, error)

type route struct {
	from Kind
	disc uint32
}

// Registry maps (layer kind, discriminant) pairs to the decoder of the next
// layer, and each kind to its own decoder for use as a first layer.
//
// Lookups and registrations are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	routes map[route]DecodeFunc
	kinds  map[Kind]DecodeFunc
	frozen bool
}

// DefaultRegistry holds the built-in dispatch table. It is read-only;
// extend a copy from NewRegistry instead.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := &Registry{
		routes: make(map[route]DecodeFunc),
		kinds: map[Kind]DecodeFunc{
			KindEthernet: DecodeEthernet,
			KindDot1Q:    DecodeDot1Q,
			KindIPv4:     DecodeIPv4,
			KindIPv6:     DecodeIPv6,
			KindUDP:      DecodeUDP,
			KindTCP:      DecodeTCP,
			KindPayload:  DecodePayload,
		},
	}

	// Link layer
	for _, from := range []Kind{KindEthernet, KindDot1Q} {
		r.routes[route{from, uint32(EtherTypeIPv4)}] = DecodeIPv4
		r.routes[route{from, uint32(EtherTypeIPv6)}] = DecodeIPv6
		r.routes[route{from, uint32(EtherTypeDot1Q)}] = DecodeDot1Q
		r.routes[route{from, uint32(EtherTypeQinQ)}] = DecodeDot1Q
	}

	// Network layer, tunnels included
	for _, from := range []Kind{KindIPv4, KindIPv6} {
		r.routes[route{from, uint32(IPProtocolUDP)}] = DecodeUDP
		r.routes[route{from, uint32(IPProtocolTCP)}] = DecodeTCP
		r.routes[route{from, uint32(IPProtocolIPv4)}] = DecodeIPv4
		r.routes[route{from, uint32(IPProtocolIPv6)}] = DecodeIPv6
	}

	r.frozen = true
	return r
}

// NewRegistry returns a mutable registry pre-populated with the default
// dispatch table.
func NewRegistry() *Registry {
	return DefaultRegistry.Clone()
}

// Clone returns a mutable copy of r.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		routes: make(map[route]DecodeFunc, len(r.routes)),
		kinds:  make(map[Kind]DecodeFunc, len(r.kinds)),
	}
	for k, v := range r.routes {
		c.routes[k] = v
	}
	for k, v := range r.kinds {
		c.kinds[k] = v
	}
	return c
}

// Register adds the decoder selected when a layer of kind from reports
// discriminant disc. Registering an existing pair is an error.
func (r *Registry) Register(from Kind, disc uint32, fn DecodeFunc) error {
	if fn == nil {
		return fmt.Errorf("register %s/0x%x: nil decoder", from, disc)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	key := route{from, disc}
	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("decoder for %s/0x%x already registered", from, disc)
	}
	r.routes[key] = fn
	return nil
}

// Unregister removes a route. Subsequent lookups miss and the remaining
// bytes decode as Payload.
func (r *Registry) Unregister(from Kind, disc uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	delete(r.routes, route{from, disc})
	return nil
}

// RegisterKind sets the decoder used when a parse starts at kind. It
// replaces any existing entry.
func (r *Registry) RegisterKind(k Kind, fn DecodeFunc) error {
	if fn == nil {
		return fmt.Errorf("register %s: nil decoder", k)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	r.kinds[k] = fn
	return nil
}

// Lookup returns the decoder for the layer that follows a layer of kind
// from reporting discriminant disc.
func (r *Registry) Lookup(from Kind, disc uint32) (DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.routes[route{from, disc}]
	return fn, ok
}

// Decoder returns the decoder for kind k itself.
func (r *Registry) Decoder(k Kind) (DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.kinds[k]
	return fn, ok
}

// Route describes one registry entry.
type Route struct {
	From         Kind
	Discriminant uint32
}

// Routes lists the registered (kind, discriminant) pairs in a stable order.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.routes))
	for k := range r.routes {
		out = append(out, Route{From: k.from, Discriminant: k.disc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Discriminant < out[j].Discriminant
	})
	return out
}
