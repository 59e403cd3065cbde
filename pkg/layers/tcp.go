package layers

import (
	"fmt"
	"strings"

	"firestige.xyz/pktcraft/pkg/codec"
)

const (
	// TCPMinHeaderLen is the header length without options.
	TCPMinHeaderLen = 20
	// TCPMaxOptionsLen is the largest options area a data offset of 15 allows.
	TCPMaxOptionsLen = 40
)

// TCPFlags holds the nine TCP control bits.
type TCPFlags uint16

const (
	TCPFlagFIN TCPFlags = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
	TCPFlagNS
)

var tcpFlagNames = []struct {
	flag TCPFlags
	name string
}{
	{TCPFlagNS, "NS"},
	{TCPFlagCWR, "CWR"},
	{TCPFlagECE, "ECE"},
	{TCPFlagURG, "URG"},
	{TCPFlagACK, "ACK"},
	{TCPFlagPSH, "PSH"},
	{TCPFlagRST, "RST"},
	{TCPFlagSYN, "SYN"},
	{TCPFlagFIN, "FIN"},
}

func (f TCPFlags) String() string {
	var names []string
	for _, n := range tcpFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseTCPFlags parses a "|" or "," separated list of flag names such as
// "SYN|ACK". Names are case-insensitive; "none" is zero.
func ParseTCPFlags(s string) (TCPFlags, error) {
	var f TCPFlags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		if strings.EqualFold(part, "none") {
			continue
		}
		found := false
		for _, n := range tcpFlagNames {
			if strings.EqualFold(n.name, part) {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown tcp flag %q", part)
		}
	}
	return f, nil
}

// TCP is a Transmission Control Protocol header. The data offset is derived
// from the options length. Flags and the reserved bits live in the same
// 16-bit word as the data offset and are reached through setters.
type TCP struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	reserved uint8
	flags    TCPFlags
	Window   uint16
	Checksum uint16
	Urgent   uint16
	options  []byte
}

// DecodeTCP decodes a TCP header (options included) from the start of data.
// Malformed options are rejected.
func DecodeTCP(data []byte) (Layer, int, error) {
	t := &TCP{}
	n, err := t.DecodeFromBytes(data)
	if err != nil {
		return nil, 0, err
	}
	return t, n, nil
}

func (t *TCP) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < TCPMinHeaderLen {
		return 0, truncated(KindTCP, "", TCPMinHeaderLen, len(data))
	}
	r := codec.NewReader(data)
	t.SrcPort, _ = r.Uint16()
	t.DstPort, _ = r.Uint16()
	t.Seq, _ = r.Uint32()
	t.Ack, _ = r.Uint32()

	// DataOffset(4) Reserved(3) Flags(9)
	word, _ := r.Uint16()
	dataOffset := int(word >> 12)
	if dataOffset < 5 {
		return 0, invalidDecode(KindTCP, "data_offset", "%d is below the minimum of 5", dataOffset)
	}
	headerLen := dataOffset * 4
	if len(data) < headerLen {
		return 0, truncated(KindTCP, "options", headerLen, len(data))
	}
	t.reserved = uint8(word>>9) & 0x07
	t.flags = TCPFlags(word & 0x01FF)

	t.Window, _ = r.Uint16()
	t.Checksum, _ = r.Uint16()
	t.Urgent, _ = r.Uint16()

	opts, _ := r.Bytes(headerLen - TCPMinHeaderLen)
	if _, err := ParseTCPOptions(opts); err != nil {
		return 0, invalidDecode(KindTCP, "options", "%v", err)
	}
	t.options = cloneBytes(opts)
	if len(t.options) == 0 {
		t.options = nil
	}
	return r.Offset(), nil
}

// DataOffset returns the header length in 32-bit words.
func (t *TCP) DataOffset() uint8 { return uint8(5 + len(t.options)/4) }

// HeaderLen returns the header length in bytes.
func (t *TCP) HeaderLen() int { return TCPMinHeaderLen + len(t.options) }

func (t *TCP) Flags() TCPFlags { return t.flags }

// SetFlags replaces the control bits. f must fit in 9 bits.
func (t *TCP) SetFlags(f TCPFlags) error {
	if f > 0x01FF {
		return invalidSet(KindTCP, "flags", "0x%x exceeds 9 bits", uint16(f))
	}
	t.flags = f
	return nil
}

// Reserved returns the three reserved bits between data offset and NS.
func (t *TCP) Reserved() uint8 { return t.reserved }

// SetReserved sets the reserved bits. v must fit in 3 bits.
func (t *TCP) SetReserved(v uint8) error {
	if v > 0x07 {
		return invalidSet(KindTCP, "reserved", "%d exceeds 3 bits", v)
	}
	t.reserved = v
	return nil
}

// RawOptions returns the options area, padding included.
func (t *TCP) RawOptions() []byte { return t.options }

// SetRawOptions replaces the options area with a copy of opts, zero padded
// to a 4-byte boundary. The bytes must parse as a TCP option list.
func (t *TCP) SetRawOptions(opts []byte) error {
	if _, err := ParseTCPOptions(opts); err != nil {
		return invalidSet(KindTCP, "options", "%v", err)
	}
	padded, err := padOptions(opts, KindTCP)
	if err != nil {
		return err
	}
	t.options = padded
	return nil
}

// Options parses the options area.
func (t *TCP) Options() ([]TCPOption, error) {
	return ParseTCPOptions(t.options)
}

// SetOptions serializes opts and installs them as the options area.
func (t *TCP) SetOptions(opts ...TCPOption) error {
	raw, err := SerializeTCPOptions(opts)
	if err != nil {
		return invalidSet(KindTCP, "options", "%v", err)
	}
	padded, err := padOptions(raw, KindTCP)
	if err != nil {
		return err
	}
	t.options = padded
	return nil
}

func (t *TCP) Kind() Kind      { return KindTCP }
func (t *TCP) WireLength() int { return t.HeaderLen() }

func (t *TCP) word() uint16 {
	return uint16(t.DataOffset())<<12 | uint16(t.reserved&0x07)<<9 | uint16(t.flags&0x01FF)
}

func (t *TCP) AppendTo(b []byte) []byte {
	b = codec.AppendUint16(b, t.SrcPort)
	b = codec.AppendUint16(b, t.DstPort)
	b = codec.AppendUint32(b, t.Seq)
	b = codec.AppendUint32(b, t.Ack)
	b = codec.AppendUint16(b, t.word())
	b = codec.AppendUint16(b, t.Window)
	b = codec.AppendUint16(b, t.Checksum)
	b = codec.AppendUint16(b, t.Urgent)
	return append(b, t.options...)
}

func (t *TCP) Encode() []byte { return encode(t) }

func (t *TCP) NextDiscriminant() (uint32, bool) { return 0, false }

func (t *TCP) Validate() error {
	if len(t.options)%4 != 0 || len(t.options) > TCPMaxOptionsLen {
		return invalidValue(KindTCP, "options", "length %d", len(t.options))
	}
	if t.flags > 0x01FF {
		return invalidValue(KindTCP, "flags", "0x%x exceeds 9 bits", uint16(t.flags))
	}
	if t.reserved > 0x07 {
		return invalidValue(KindTCP, "reserved", "%d exceeds 3 bits", t.reserved)
	}
	return nil
}

// ComputeChecksum returns the checksum over ph, the header with a zero
// checksum field, and payload.
func (t *TCP) ComputeChecksum(ph PseudoHeader, payload []byte) uint16 {
	var c codec.Checksum
	ph.AddTo(&c)
	hdr := t.Encode()
	hdr[16], hdr[17] = 0, 0
	c.Add(hdr)
	c.Add(payload)
	return c.Sum()
}

func (t *TCP) Clone() Layer {
	c := *t
	c.options = cloneBytes(t.options)
	return &c
}

func (t *TCP) String() string {
	return fmt.Sprintf("TCP %d > %d [%s] seq %d ack %d win %d sum 0x%04x",
		t.SrcPort, t.DstPort, t.flags, t.Seq, t.Ack, t.Window, t.Checksum)
}

func (t *TCP) sealed() {}
