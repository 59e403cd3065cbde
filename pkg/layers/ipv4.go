package layers

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/pktcraft/pkg/codec"
)

const (
	// IPv4MinHeaderLen is the header length without options.
	IPv4MinHeaderLen = 20
	// IPv4MaxOptionsLen is the largest options area an IHL of 15 allows.
	IPv4MaxOptionsLen = 40
)

// IPv4Flags holds the three control bits that precede the fragment offset.
type IPv4Flags uint8

const (
	IPv4MoreFragments IPv4Flags = 1 << iota
	IPv4DontFragment
	IPv4EvilBit
)

func (f IPv4Flags) String() string {
	s := ""
	if f&IPv4EvilBit != 0 {
		s += "Evil|"
	}
	if f&IPv4DontFragment != 0 {
		s += "DF|"
	}
	if f&IPv4MoreFragments != 0 {
		s += "MF|"
	}
	if s == "" {
		return "none"
	}
	return s[:len(s)-1]
}

// ParseIPv4Flags parses a "|" or "," separated list of "DF", "MF" and
// "Evil". "none" and the empty string are zero.
func ParseIPv4Flags(s string) (IPv4Flags, error) {
	var f IPv4Flags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		switch strings.ToLower(part) {
		case "df":
			f |= IPv4DontFragment
		case "mf":
			f |= IPv4MoreFragments
		case "evil":
			f |= IPv4EvilBit
		case "none":
		default:
			return 0, fmt.Errorf("unknown ipv4 flag %q", part)
		}
	}
	return f, nil
}

// IPv4 is an Internet Protocol version 4 header.
//
// Version is always 4 and IHL is derived from the options length, so neither
// is stored. Flags and FragmentOffset share one 16-bit word and are reached
// through range-checked setters.
type IPv4 struct {
	TOS         uint8 // DSCP(6) ECN(2)
	TotalLength uint16
	ID          uint16
	flagsFrag   uint16
	TTL         uint8
	Protocol    IPProtocol
	Checksum    uint16
	Src         netip.Addr
	Dst         netip.Addr
	options     []byte
}

// DecodeIPv4 decodes an IPv4 header (options included) from the start of data.
func DecodeIPv4(data []byte) (Layer, int, error) {
	ip := &IPv4{}
	n, err := ip.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return ip, n, nil
}

func (ip *IPv4) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < IPv4MinHeaderLen {
		return 0, truncated(KindIPv4, "", IPv4MinHeaderLen, len(data))
	}
	r := codec.NewReader(data)

	// Version and IHL share the first byte
	vihl, _ := r.Uint8()
	if version := vihl >> 4; version != 4 {
		return 0, invalidDecode(KindIPv4, "version", "got %d", version)
	}
	ihl := int(vihl & 0x0F)
	if ihl < 5 {
		return 0, invalidDecode(KindIPv4, "ihl", "%d is below the minimum of 5", ihl)
	}
	headerLen := ihl * 4
	if len(data) < headerLen {
		return 0, truncated(KindIPv4, "options", headerLen, len(data))
	}

	ip.TOS, _ = r.Uint8()
	ip.TotalLength, _ = r.Uint16()
	ip.ID, _ = r.Uint16()
	ip.flagsFrag, _ = r.Uint16()
	ip.TTL, _ = r.Uint8()
	proto, _ := r.Uint8()
	ip.Protocol = IPProtocol(proto)
	ip.Checksum, _ = r.Uint16()

	var addr [4]byte
	_ = r.Array(addr[:])
	ip.Src = netip.AddrFrom4(addr)
	_ = r.Array(addr[:])
	ip.Dst = netip.AddrFrom4(addr)

	opts, _ := r.Bytes(headerLen - IPv4MinHeaderLen)
	ip.options = cloneBytes(opts)
	if len(ip.options) == 0 {
		ip.options = nil
	}
	return r.Offset(), nil
}

// IHL returns the header length in 32-bit words.
func (ip *IPv4) IHL() uint8 { return uint8(5 + len(ip.options)/4) }

// HeaderLen returns the header length in bytes.
func (ip *IPv4) HeaderLen() int { return IPv4MinHeaderLen + len(ip.options) }

// DSCP returns the upper six bits of TOS.
func (ip *IPv4) DSCP() uint8 { return ip.TOS >> 2 }

// ECN returns the lower two bits of TOS.
func (ip *IPv4) ECN() uint8 { return ip.TOS & 0x03 }

// SetDSCP sets the differentiated services code point. v must fit in 6 bits.
func (ip *IPv4) SetDSCP(v uint8) error {
	if v > 0x3F {
		return invalidSet(KindIPv4, "dscp", "%d exceeds 6 bits", v)
	}
	ip.TOS = v<<2 | ip.TOS&0x03
	return nil
}

// SetECN sets the explicit congestion notification bits. v must fit in 2 bits.
func (ip *IPv4) SetECN(v uint8) error {
	if v > 0x03 {
		return invalidSet(KindIPv4, "ecn", "%d exceeds 2 bits", v)
	}
	ip.TOS = ip.TOS&0xFC | v
	return nil
}

func (ip *IPv4) Flags() IPv4Flags { return IPv4Flags(ip.flagsFrag >> 13) }

// SetFlags sets the control flags. f must fit in 3 bits.
func (ip *IPv4) SetFlags(f IPv4Flags) error {
	if f > 7 {
		return invalidSet(KindIPv4, "flags", "%d exceeds 3 bits", f)
	}
	ip.flagsFrag = uint16(f)<<13 | ip.flagsFrag&0x1FFF
	return nil
}

// FragmentOffset returns the offset in 8-byte units.
func (ip *IPv4) FragmentOffset() uint16 { return ip.flagsFrag & 0x1FFF }

// SetFragmentOffset sets the fragment offset. off must fit in 13 bits.
func (ip *IPv4) SetFragmentOffset(off uint16) error {
	if off > 0x1FFF {
		return invalidSet(KindIPv4, "fragment_offset", "%d exceeds 13 bits", off)
	}
	ip.flagsFrag = ip.flagsFrag&0xE000 | off
	return nil
}

// Options returns the raw options area, including any trailing padding.
// The slice is owned by the layer.
func (ip *IPv4) Options() []byte { return ip.options }

// SetOptions replaces the options area. The bytes are copied and zero
// padded (End of Option List) to a 4-byte boundary; the padded length may
// not exceed 40.
func (ip *IPv4) SetOptions(opts []byte) error {
	padded, err := padOptions(opts, KindIPv4)
	if err != nil {
		return err
	}
	ip.options = padded
	return nil
}

func padOptions(opts []byte, k Kind) ([]byte, error) {
	n := (len(opts) + 3) &^ 3
	if n > IPv4MaxOptionsLen {
		return nil, invalidSet(k, "options", "%d bytes padded to %d, limit %d", len(opts), n, IPv4MaxOptionsLen)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, opts)
	return out, nil
}

func (ip *IPv4) Kind() Kind      { return KindIPv4 }
func (ip *IPv4) WireLength() int { return ip.HeaderLen() }

func (ip *IPv4) AppendTo(b []byte) []byte {
	b = append(b, 0x40|ip.IHL(), ip.TOS)
	b = codec.AppendUint16(b, ip.TotalLength)
	b = codec.AppendUint16(b, ip.ID)
	b = codec.AppendUint16(b, ip.flagsFrag)
	b = append(b, ip.TTL, uint8(ip.Protocol))
	b = codec.AppendUint16(b, ip.Checksum)
	src, dst := ip.addrs()
	b = append(b, src[:]...)
	b = append(b, dst[:]...)
	return append(b, ip.options...)
}

func (ip *IPv4) Encode() []byte { return encode(ip) }

// addrs returns the 4-byte forms of Src and Dst. A zero netip.Addr encodes
// as 0.0.0.0.
func (ip *IPv4) addrs() (src, dst [4]byte) {
	return as4(ip.Src), as4(ip.Dst)
}

func as4(a netip.Addr) [4]byte {
	a = a.Unmap()
	if !a.Is4() {
		return [4]byte{}
	}
	return a.As4()
}

// NextDiscriminant returns the protocol number. Fragments other than the
// first carry no transport header and end dispatch.
func (ip *IPv4) NextDiscriminant() (uint32, bool) {
	if ip.FragmentOffset() != 0 {
		return 0, false
	}
	return uint32(ip.Protocol), true
}

func (ip *IPv4) Validate() error {
	if err := validAddr4(ip.Src, "src"); err != nil {
		return err
	}
	if err := validAddr4(ip.Dst, "dst"); err != nil {
		return err
	}
	if len(ip.options)%4 != 0 || len(ip.options) > IPv4MaxOptionsLen {
		return invalidValue(KindIPv4, "options", "length %d", len(ip.options))
	}
	return nil
}

func validAddr4(a netip.Addr, field string) error {
	if a.IsValid() && !a.Unmap().Is4() {
		return invalidValue(KindIPv4, field, "%s is not an IPv4 address", a)
	}
	return nil
}

// PseudoHeader returns the transport pseudo-header fields this header
// contributes. length is the transport segment length.
func (ip *IPv4) PseudoHeader(proto IPProtocol, length int) PseudoHeader {
	src, dst := ip.addrs()
	return PseudoHeader{
		Src:      netip.AddrFrom4(src),
		Dst:      netip.AddrFrom4(dst),
		Protocol: proto,
		Length:   uint32(length),
	}
}

// HeaderChecksum computes the header checksum with the checksum field
// treated as zero.
func (ip *IPv4) HeaderChecksum() uint16 {
	hdr := ip.Encode()
	hdr[10], hdr[11] = 0, 0
	return codec.InternetChecksum(hdr)
}

func (ip *IPv4) Clone() Layer {
	c := *ip
	c.options = cloneBytes(ip.options)
	return &c
}

func (ip *IPv4) String() string {
	return fmt.Sprintf("IPv4 %s > %s proto %s ttl %d len %d id %d flags %s frag %d",
		ip.Src, ip.Dst, ip.Protocol, ip.TTL, ip.TotalLength, ip.ID, ip.Flags(), ip.FragmentOffset())
}

func (ip *IPv4) sealed() {}
