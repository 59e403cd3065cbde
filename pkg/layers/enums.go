package layers

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// EtherType is the 16-bit protocol selector carried by Ethernet and 802.1Q headers.
type EtherType uint16

const (
	EtherTypeIPv4  EtherType = 0x0800
	EtherTypeARP   EtherType = 0x0806
	EtherTypeDot1Q EtherType = 0x8100
	EtherTypeIPv6  EtherType = 0x86DD
	EtherTypeQinQ  EtherType = 0x88A8
	EtherTypeLLDP  EtherType = 0x88CC
)

var etherTypeNames = map[EtherType]string{
	EtherTypeIPv4:  "IPv4",
	EtherTypeARP:   "ARP",
	EtherTypeDot1Q: "Dot1Q",
	EtherTypeIPv6:  "IPv6",
	EtherTypeQinQ:  "QinQ",
	EtherTypeLLDP:  "LLDP",
}

func (t EtherType) String() string {
	if name, ok := etherTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// ParseEtherType accepts a symbolic name ("ipv4", "dot1q") or a number in
// any base strconv understands ("0x0800", "2048").
func ParseEtherType(s string) (EtherType, error) {
	s = strings.TrimSpace(s)
	for v, name := range etherTypeNames {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid ether type %q: %w", s, err)
	}
	return EtherType(n), nil
}

// IPProtocol is the IPv4 protocol / IPv6 next-header number.
type IPProtocol uint8

const (
	IPProtocolHopByHop IPProtocol = 0
	IPProtocolICMPv4   IPProtocol = 1
	IPProtocolIPv4     IPProtocol = 4
	IPProtocolTCP      IPProtocol = 6
	IPProtocolUDP      IPProtocol = 17
	IPProtocolIPv6     IPProtocol = 41
	IPProtocolGRE      IPProtocol = 47
	IPProtocolESP      IPProtocol = 50
	IPProtocolICMPv6   IPProtocol = 58
	IPProtocolNoNext   IPProtocol = 59
	IPProtocolSCTP     IPProtocol = 132
)

var ipProtocolNames = map[IPProtocol]string{
	IPProtocolHopByHop: "HopByHop",
	IPProtocolICMPv4:   "ICMPv4",
	IPProtocolIPv4:     "IPv4",
	IPProtocolTCP:      "TCP",
	IPProtocolUDP:      "UDP",
	IPProtocolIPv6:     "IPv6",
	IPProtocolGRE:      "GRE",
	IPProtocolESP:      "ESP",
	IPProtocolICMPv6:   "ICMPv6",
	IPProtocolNoNext:   "NoNext",
	IPProtocolSCTP:     "SCTP",
}

func (p IPProtocol) String() string {
	if name, ok := ipProtocolNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// ParseIPProtocol accepts a symbolic name ("udp", "tcp") or a decimal/hex number.
func ParseIPProtocol(s string) (IPProtocol, error) {
	s = strings.TrimSpace(s)
	for v, name := range ipProtocolNames {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid ip protocol %q: %w", s, err)
	}
	return IPProtocol(n), nil
}

// MAC is a 48-bit IEEE 802 hardware address.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses the colon, hyphen or dot separated forms accepted by
// net.ParseMAC. Only 48-bit addresses are accepted.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("invalid MAC address %q: want 6 bytes, got %d", s, len(hw))
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// MustParseMAC is like ParseMAC but panics on error. Intended for tests and
// package-level variables.
func MustParseMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	v, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
