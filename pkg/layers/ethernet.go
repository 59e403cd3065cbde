package layers

import (
	"fmt"

	"firestige.xyz/pktcraft/pkg/codec"
)

const (
	// EthernetHeaderLen is the length of an untagged Ethernet II header.
	EthernetHeaderLen = 14
	dot1QHeaderLen    = 4
)

// Ethernet is an Ethernet II frame header. The frame check sequence is not
// modelled.
type Ethernet struct {
	Dst       MAC
	Src       MAC
	EtherType EtherType
}

// DecodeEthernet decodes an Ethernet II header from the start of data.
func DecodeEthernet(data []byte) (Layer, int, error) {
	eth := &Ethernet{}
	n, err := eth.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return eth, n, nil
}

// DecodeFromBytes overwrites e with the header at the start of data and
// returns the number of bytes consumed.
func (e *Ethernet) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < EthernetHeaderLen {
		return 0, truncated(KindEthernet, "", EthernetHeaderLen, len(data))
	}
	r := codec.NewReader(data)

	// Destination MAC (6 bytes)
	_ = r.Array(e.Dst[:])
	// Source MAC (6 bytes)
	_ = r.Array(e.Src[:])
	// EtherType (2 bytes)
	et, _ := r.Uint16()
	e.EtherType = EtherType(et)

	return r.Offset(), nil
}

func (e *Ethernet) Kind() Kind      { return KindEthernet }
func (e *Ethernet) WireLength() int { return EthernetHeaderLen }

func (e *Ethernet) AppendTo(b []byte) []byte {
	b = append(b, e.Dst[:]...)
	b = append(b, e.Src[:]...)
	return codec.AppendUint16(b, uint16(e.EtherType))
}

func (e *Ethernet) Encode() []byte { return encode(e) }

func (e *Ethernet) NextDiscriminant() (uint32, bool) {
	return uint32(e.EtherType), true
}

// Validate always succeeds: every Ethernet field is full width.
func (e *Ethernet) Validate() error { return nil }

func (e *Ethernet) Clone() Layer {
	c := *e
	return &c
}

func (e *Ethernet) String() string {
	return fmt.Sprintf("Ethernet %s > %s type %s", e.Src, e.Dst, e.EtherType)
}

func (e *Ethernet) sealed() {}

// Dot1Q is an IEEE 802.1Q VLAN tag. The TPID that announced it belongs to
// the preceding header; Dot1Q itself holds the TCI and the inner EtherType.
type Dot1Q struct {
	tci       uint16
	EtherType EtherType
}

// DecodeDot1Q decodes a 4-byte VLAN tag from the start of data.
func DecodeDot1Q(data []byte) (Layer, int, error) {
	d := &Dot1Q{}
	n, err := d.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return d, n, nil
}

func (d *Dot1Q) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < dot1QHeaderLen {
		return 0, truncated(KindDot1Q, "", dot1QHeaderLen, len(data))
	}
	r := codec.NewReader(data)
	// TCI: PCP(3) DEI(1) VID(12)
	d.tci, _ = r.Uint16()
	et, _ := r.Uint16()
	d.EtherType = EtherType(et)
	return r.Offset(), nil
}

// Priority returns the 3-bit priority code point.
func (d *Dot1Q) Priority() uint8 { return uint8(d.tci >> 13) }

// DropEligible returns the DEI bit.
func (d *Dot1Q) DropEligible() bool { return d.tci&0x1000 != 0 }

// VLANID returns the 12-bit VLAN identifier.
func (d *Dot1Q) VLANID() uint16 { return d.tci & 0x0FFF }

// SetPriority sets the priority code point. p must fit in 3 bits.
func (d *Dot1Q) SetPriority(p uint8) error {
	if p > 7 {
		return invalidSet(KindDot1Q, "priority", "%d exceeds 3 bits", p)
	}
	d.tci = d.tci&0x1FFF | uint16(p)<<13
	return nil
}

// SetDropEligible sets the DEI bit.
func (d *Dot1Q) SetDropEligible(v bool) {
	if v {
		d.tci |= 0x1000
	} else {
		d.tci &^= 0x1000
	}
}

// SetVLANID sets the VLAN identifier. id must fit in 12 bits.
func (d *Dot1Q) SetVLANID(id uint16) error {
	if id > 0x0FFF {
		return invalidSet(KindDot1Q, "vlan_id", "%d exceeds 12 bits", id)
	}
	d.tci = d.tci&0xF000 | id
	return nil
}

func (d *Dot1Q) Kind() Kind      { return KindDot1Q }
func (d *Dot1Q) WireLength() int { return dot1QHeaderLen }

func (d *Dot1Q) AppendTo(b []byte) []byte {
	b = codec.AppendUint16(b, d.tci)
	return codec.AppendUint16(b, uint16(d.EtherType))
}

func (d *Dot1Q) Encode() []byte { return encode(d) }

func (d *Dot1Q) NextDiscriminant() (uint32, bool) {
	return uint32(d.EtherType), true
}

func (d *Dot1Q) Validate() error { return nil }

func (d *Dot1Q) Clone() Layer {
	c := *d
	return &c
}

func (d *Dot1Q) String() string {
	return fmt.Sprintf("Dot1Q vlan %d prio %d type %s", d.VLANID(), d.Priority(), d.EtherType)
}

func (d *Dot1Q) sealed() {}
