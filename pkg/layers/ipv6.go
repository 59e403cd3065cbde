package layers

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/pkg/codec"
)

// IPv6HeaderLen is the length of the fixed IPv6 header.
const IPv6HeaderLen = 40

// IPv6 is the fixed Internet Protocol version 6 header. Extension headers are
// not modelled; a next-header value without a registered decoder ends
// dispatch and the rest of the packet becomes a Payload.
type IPv6 struct {
	TrafficClass  uint8
	flowLabel     uint32
	PayloadLength uint16
	NextHeader    IPProtocol
	HopLimit      uint8
	Src           netip.Addr
	Dst           netip.Addr
}

// DecodeIPv6 decodes the fixed IPv6 header from the start of data.
func DecodeIPv6(data []byte) (Layer, int, error) {
	ip := &IPv6{}
	n, err := ip.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return ip, n, nil
}

func (ip *IPv6) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < IPv6HeaderLen {
		return 0, truncated(KindIPv6, "", IPv6HeaderLen, len(data))
	}
	r := codec.NewReader(data)

	// Version(4) TrafficClass(8) FlowLabel(20)
	word, _ := r.Uint32()
	if version := word >> 28; version != 6 {
		return 0, invalidDecode(KindIPv6, "version", "got %d", version)
	}
	ip.TrafficClass = uint8(word >> 20)
	ip.flowLabel = word & 0x000FFFFF

	ip.PayloadLength, _ = r.Uint16()
	nh, _ := r.Uint8()
	ip.NextHeader = IPProtocol(nh)
	ip.HopLimit, _ = r.Uint8()

	var addr [16]byte
	_ = r.Array(addr[:])
	ip.Src = netip.AddrFrom16(addr)
	_ = r.Array(addr[:])
	ip.Dst = netip.AddrFrom16(addr)

	return r.Offset(), nil
}

// FlowLabel returns the 20-bit flow label.
func (ip *IPv6) FlowLabel() uint32 { return ip.flowLabel }

// SetFlowLabel sets the flow label. v must fit in 20 bits.
func (ip *IPv6) SetFlowLabel(v uint32) error {
	if v > 0x000FFFFF {
		return invalidSet(KindIPv6, "flow_label", "%d exceeds 20 bits", v)
	}
	ip.flowLabel = v
	return nil
}

func (ip *IPv6) Kind() Kind      { return KindIPv6 }
func (ip *IPv6) WireLength() int { return IPv6HeaderLen }

func (ip *IPv6) AppendTo(b []byte) []byte {
	b = codec.AppendUint32(b, 6<<28|uint32(ip.TrafficClass)<<20|ip.flowLabel&0x000FFFFF)
	b = codec.AppendUint16(b, ip.PayloadLength)
	b = append(b, uint8(ip.NextHeader), ip.HopLimit)
	src, dst := as16(ip.Src), as16(ip.Dst)
	b = append(b, src[:]...)
	return append(b, dst[:]...)
}

func as16(a netip.Addr) [16]byte {
	if !a.IsValid() || a.Is4() {
		return [16]byte{}
	}
	return a.As16()
}

func (ip *IPv6) Encode() []byte { return encode(ip) }

func (ip *IPv6) NextDiscriminant() (uint32, bool) {
	return uint32(ip.NextHeader), true
}

func (ip *IPv6) Validate() error {
	for _, f := range []struct {
		name string
		addr netip.Addr
	}{{"src", ip.Src}, {"dst", ip.Dst}} {
		if f.addr.Is4() {
			return invalidValue(KindIPv6, f.name, "%s is not an IPv6 address", f.addr)
		}
	}
	if ip.flowLabel > 0x000FFFFF {
		return invalidValue(KindIPv6, "flow_label", "%d exceeds 20 bits", ip.flowLabel)
	}
	return nil
}

// PseudoHeader returns the transport pseudo-header fields this header
// contributes. length is the upper-layer packet length.
func (ip *IPv6) PseudoHeader(proto IPProtocol, length int) PseudoHeader {
	return PseudoHeader{
		Src:      netip.AddrFrom16(as16(ip.Src)),
		Dst:      netip.AddrFrom16(as16(ip.Dst)),
		Protocol: proto,
		Length:   uint32(length),
	}
}

func (ip *IPv6) Clone() Layer {
	c := *ip
	return &c
}

func (ip *IPv6) String() string {
	return fmt.Sprintf("IPv6 %s > %s next %s hlim %d plen %d flow %d",
		ip.Src, ip.Dst, ip.NextHeader, ip.HopLimit, ip.PayloadLength, ip.flowLabel)
}

func (ip *IPv6) sealed() {}

// PseudoHeader carries the network-layer fields folded into a TCP or UDP
// checksum. Src and Dst are both 4-byte or both 16-byte addresses.
type PseudoHeader struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol IPProtocol
	Length   uint32
}

// AddTo feeds the pseudo-header into c in the layout of RFC 768/793 for
// IPv4 addresses and RFC 8200 section 8.1 for IPv6 addresses.
func (p PseudoHeader) AddTo(c *codec.Checksum) {
	if p.Src.Is4() {
		src, dst := p.Src.As4(), p.Dst.As4()
		c.Add(src[:])
		c.Add(dst[:])
		c.AddUint16(uint16(p.Protocol))
		c.AddUint16(uint16(p.Length))
		return
	}
	src, dst := p.Src.As16(), p.Dst.As16()
	c.Add(src[:])
	c.Add(dst[:])
	c.AddUint32(p.Length)
	c.AddUint32(uint32(p.Protocol))
}
