package layers

import (
	"fmt"

	"firestige.xyz/pktcraft/pkg/codec"
)

// UDPHeaderLen is the length of a UDP header.
const UDPHeaderLen = 8

// UDP is a User Datagram Protocol header.
type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// DecodeUDP decodes a UDP header from the start of data. Length is taken as
// is and not checked against the buffer.
func DecodeUDP(data []byte) (Layer, int, error) {
	u := &UDP{}
	n, err := u.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return u, n, nil
}

func (u *UDP) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < UDPHeaderLen {
		return 0, truncated(KindUDP, "", UDPHeaderLen, len(data))
	}
	r := codec.NewReader(data)
	u.SrcPort, _ = r.Uint16()
	u.DstPort, _ = r.Uint16()
	u.Length, _ = r.Uint16()
	u.Checksum, _ = r.Uint16()
	return r.Offset(), nil
}

func (u *UDP) Kind() Kind      { return KindUDP }
func (u *UDP) WireLength() int { return UDPHeaderLen }

func (u *UDP) AppendTo(b []byte) []byte {
	b = codec.AppendUint16(b, u.SrcPort)
	b = codec.AppendUint16(b, u.DstPort)
	b = codec.AppendUint16(b, u.Length)
	return codec.AppendUint16(b, u.Checksum)
}

func (u *UDP) Encode() []byte { return encode(u) }

// NextDiscriminant ends dispatch; everything after a UDP header is payload.
func (u *UDP) NextDiscriminant() (uint32, bool) { return 0, false }

func (u *UDP) Validate() error { return nil }

// ComputeChecksum returns the checksum over ph, the header with a zero
// checksum field, and payload. A computed zero is transmitted as 0xFFFF.
func (u *UDP) ComputeChecksum(ph PseudoHeader, payload []byte) uint16 {
	var c codec.Checksum
	ph.AddTo(&c)
	c.AddUint16(u.SrcPort)
	c.AddUint16(u.DstPort)
	c.AddUint16(u.Length)
	c.AddUint16(0)
	c.Add(payload)
	sum := c.Sum()
	if sum == 0 {
		sum = 0xFFFF
	}
	return sum
}

func (u *UDP) Clone() Layer {
	c := *u
	return &c
}

func (u *UDP) String() string {
	return fmt.Sprintf("UDP %d > %d len %d sum 0x%04x", u.SrcPort, u.DstPort, u.Length, u.Checksum)
}

func (u *UDP) sealed() {}
