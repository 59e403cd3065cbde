package layers

import (
	"errors"
	"net/netip"
)

// Builder defaults for zero-valued config fields.
const (
	DefaultTTL       = 64
	DefaultHopLimit  = 64
	DefaultTCPWindow = 8192
)

// EthernetConfig configures NewEthernet. A zero EtherType selects IPv4.
type EthernetConfig struct {
	Dst       MAC       `mapstructure:"dst"`
	Src       MAC       `mapstructure:"src"`
	EtherType EtherType `mapstructure:"ether_type"`
}

// NewEthernet builds an Ethernet header.
func NewEthernet(cfg EthernetConfig) *Ethernet {
	if cfg.EtherType == 0 {
		cfg.EtherType = EtherTypeIPv4
	}
	return &Ethernet{Dst: cfg.Dst, Src: cfg.Src, EtherType: cfg.EtherType}
}

// Dot1QConfig configures NewDot1Q. A zero EtherType selects IPv4.
type Dot1QConfig struct {
	Priority     uint8     `mapstructure:"priority"`
	DropEligible bool      `mapstructure:"drop_eligible"`
	VLANID       uint16    `mapstructure:"vlan_id"`
	EtherType    EtherType `mapstructure:"ether_type"`
}

// NewDot1Q builds a VLAN tag.
func NewDot1Q(cfg Dot1QConfig) (*Dot1Q, error) {
	d := &Dot1Q{EtherType: cfg.EtherType}
	if d.EtherType == 0 {
		d.EtherType = EtherTypeIPv4
	}
	if err := errors.Join(d.SetPriority(cfg.Priority), d.SetVLANID(cfg.VLANID)); err != nil {
		return nil, err
	}
	d.SetDropEligible(cfg.DropEligible)
	return d, nil
}

// IPv4Config configures NewIPv4. Zero addresses encode as 0.0.0.0 and a zero
// TTL becomes DefaultTTL. TotalLength and Checksum are left for Update.
type IPv4Config struct {
	DSCP           uint8      `mapstructure:"dscp"`
	ECN            uint8      `mapstructure:"ecn"`
	ID             uint16     `mapstructure:"id"`
	Flags          IPv4Flags  `mapstructure:"flags"`
	FragmentOffset uint16     `mapstructure:"fragment_offset"`
	TTL            uint8      `mapstructure:"ttl"`
	Protocol       IPProtocol `mapstructure:"protocol"`
	Src            netip.Addr `mapstructure:"src"`
	Dst            netip.Addr `mapstructure:"dst"`
	Options        []byte     `mapstructure:"options"`
}

// NewIPv4 builds an IPv4 header.
func NewIPv4(cfg IPv4Config) (*IPv4, error) {
	ip := &IPv4{
		ID:       cfg.ID,
		TTL:      cfg.TTL,
		Protocol: cfg.Protocol,
		Src:      cfg.Src,
		Dst:      cfg.Dst,
	}
	if ip.TTL == 0 {
		ip.TTL = DefaultTTL
	}
	if !ip.Src.IsValid() {
		ip.Src = netip.IPv4Unspecified()
	}
	if !ip.Dst.IsValid() {
		ip.Dst = netip.IPv4Unspecified()
	}
	err := errors.Join(
		ip.SetDSCP(cfg.DSCP),
		ip.SetECN(cfg.ECN),
		ip.SetFlags(cfg.Flags),
		ip.SetFragmentOffset(cfg.FragmentOffset),
		ip.SetOptions(cfg.Options),
		ip.Validate(),
	)
	if err != nil {
		return nil, err
	}
	return ip, nil
}

// IPv6Config configures NewIPv6. Zero addresses encode as :: and a zero hop
// limit becomes DefaultHopLimit.
type IPv6Config struct {
	TrafficClass uint8      `mapstructure:"traffic_class"`
	FlowLabel    uint32     `mapstructure:"flow_label"`
	NextHeader   IPProtocol `mapstructure:"next_header"`
	HopLimit     uint8      `mapstructure:"hop_limit"`
	Src          netip.Addr `mapstructure:"src"`
	Dst          netip.Addr `mapstructure:"dst"`
}

// NewIPv6 builds a fixed IPv6 header.
func NewIPv6(cfg IPv6Config) (*IPv6, error) {
	ip := &IPv6{
		TrafficClass: cfg.TrafficClass,
		NextHeader:   cfg.NextHeader,
		HopLimit:     cfg.HopLimit,
		Src:          cfg.Src,
		Dst:          cfg.Dst,
	}
	if ip.HopLimit == 0 {
		ip.HopLimit = DefaultHopLimit
	}
	if !ip.Src.IsValid() {
		ip.Src = netip.IPv6Unspecified()
	}
	if !ip.Dst.IsValid() {
		ip.Dst = netip.IPv6Unspecified()
	}
	if err := errors.Join(ip.SetFlowLabel(cfg.FlowLabel), ip.Validate()); err != nil {
		return nil, err
	}
	return ip, nil
}

// UDPConfig configures NewUDP. Length and Checksum are left for Update.
type UDPConfig struct {
	SrcPort uint16 `mapstructure:"src_port"`
	DstPort uint16 `mapstructure:"dst_port"`
}

// NewUDP builds a UDP header.
func NewUDP(cfg UDPConfig) *UDP {
	return &UDP{SrcPort: cfg.SrcPort, DstPort: cfg.DstPort}
}

// TCPConfig configures NewTCP. A zero Window becomes DefaultTCPWindow.
type TCPConfig struct {
	SrcPort uint16      `mapstructure:"src_port"`
	DstPort uint16      `mapstructure:"dst_port"`
	Seq     uint32      `mapstructure:"seq"`
	Ack     uint32      `mapstructure:"ack"`
	Flags   TCPFlags    `mapstructure:"flags"`
	Window  uint16      `mapstructure:"window"`
	Urgent  uint16      `mapstructure:"urgent"`
	Options []TCPOption `mapstructure:"options"`
}

// NewTCP builds a TCP header.
func NewTCP(cfg TCPConfig) (*TCP, error) {
	t := &TCP{
		SrcPort: cfg.SrcPort,
		DstPort: cfg.DstPort,
		Seq:     cfg.Seq,
		Ack:     cfg.Ack,
		Window:  cfg.Window,
		Urgent:  cfg.Urgent,
	}
	if t.Window == 0 {
		t.Window = DefaultTCPWindow
	}
	if err := errors.Join(t.SetFlags(cfg.Flags), t.SetOptions(cfg.Options...)); err != nil {
		return nil, err
	}
	return t, nil
}

// NewPayload wraps a copy of data.
func NewPayload(data []byte) *Payload {
	return &Payload{Data: cloneBytes(data)}
}

// NewCustom wraps a copy of data in a terminal Custom layer.
func NewCustom(tag string, data []byte) *Custom {
	return &Custom{Tag: tag, Data: cloneBytes(data)}
}
