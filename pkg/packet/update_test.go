package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	gl "github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/pkg/codec"
	"firestige.xyz/pktcraft/pkg/layers"
)

func TestUpdateIPv4HeaderChecksumValid(t *testing.T) {
	raw := helloPacket(t).ToBytes()
	assert.Equal(t, uint16(0), codec.InternetChecksum(raw[14:34]))
}

func TestUpdateIsIdempotent(t *testing.T) {
	for _, tt := range updateVectors {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromBytes(mustHex(t, tt.data))
			require.NoError(t, err)

			require.NoError(t, p.Update())
			once := p.ToBytes()
			require.NoError(t, p.Update())
			assert.Equal(t, once, p.ToBytes())
		})
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	p := helloPacket(t)
	raw := p.ToBytes()

	decoded, err := FromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded.ToBytes())

	require.NoError(t, decoded.Update())
	assert.Equal(t, raw, decoded.ToBytes(), "an updated packet is a fixed point")
}

func TestUpdateDestinationChangesBothChecksums(t *testing.T) {
	p := helloPacket(t)
	ipSum, udpSum := p.IPv4().Checksum, p.UDP().Checksum

	p.IPv4().Dst = netip.MustParseAddr("192.0.2.77")
	require.NoError(t, p.Update())

	assert.NotEqual(t, ipSum, p.IPv4().Checksum)
	assert.NotEqual(t, udpSum, p.UDP().Checksum)
}

func TestUpdatePayloadChange(t *testing.T) {
	t.Run("SameLength", func(t *testing.T) {
		p := helloPacket(t)
		ipSum, udpSum, udpLen := p.IPv4().Checksum, p.UDP().Checksum, p.UDP().Length

		p.Payload().Data = []byte("HELLO WORLD?")
		require.NoError(t, p.Update())

		assert.Equal(t, ipSum, p.IPv4().Checksum)
		assert.Equal(t, udpLen, p.UDP().Length)
		assert.NotEqual(t, udpSum, p.UDP().Checksum)
	})

	t.Run("Longer", func(t *testing.T) {
		p := helloPacket(t)
		ipSum, udpSum := p.IPv4().Checksum, p.UDP().Checksum

		p.Payload().Data = []byte("hello world! and more")
		require.NoError(t, p.Update())

		assert.Equal(t, uint16(8+21), p.UDP().Length)
		assert.Equal(t, uint16(20+8+21), p.IPv4().TotalLength)
		assert.NotEqual(t, udpSum, p.UDP().Checksum)
		assert.NotEqual(t, ipSum, p.IPv4().Checksum, "total length is covered by the header checksum")
	})
}

func TestUpdateLengthOverflowLeavesPacketUntouched(t *testing.T) {
	p := helloPacket(t)
	p.IPv4().TTL = 1 // stale the header checksum
	before := p.ToBytes()

	p.Payload().Data = make([]byte, 0xFFFF)
	err := p.Update()
	require.ErrorIs(t, err, layers.ErrInvalidField)

	var lerr *layers.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, layers.KindIPv4, lerr.Kind)
	assert.Equal(t, "total_length", lerr.Field)

	p.Payload().Data = []byte("hello world!")
	assert.Equal(t, before, p.ToBytes(), "no field may be written by a failed update")
}

func TestUpdateValidationFailureLeavesPacketUntouched(t *testing.T) {
	p := helloPacket(t)
	p.Payload().Data = []byte("changed")
	before := p.ToBytes()

	p.IPv4().Src = netip.MustParseAddr("2001:db8::1")
	require.ErrorIs(t, p.Update(), layers.ErrInvalidField)

	p.IPv4().Src = netip.MustParseAddr("127.0.0.1")
	assert.Equal(t, before, p.ToBytes())
}

func TestUpdateIPv6PayloadLengthOverflow(t *testing.T) {
	ip6, err := layers.NewIPv6(layers.IPv6Config{NextHeader: layers.IPProtocolNoNext})
	require.NoError(t, err)
	p := New(ip6, layers.NewPayload(make([]byte, 0xFFFF)))
	require.NoError(t, p.Update(), "exactly 65535 payload bytes fit")
	assert.Equal(t, uint16(0xFFFF), p.IPv6().PayloadLength)

	p.Payload().Data = append(p.Payload().Data, 0)
	assert.ErrorIs(t, p.Update(), layers.ErrInvalidField)
	assert.Equal(t, uint16(0xFFFF), p.IPv6().PayloadLength)
}

func TestUpdateTransportWithoutNetworkLayer(t *testing.T) {
	udp := layers.NewUDP(layers.UDPConfig{DstPort: 53})
	udp.Checksum = 0xBEEF
	p := New(udp, layers.NewPayload([]byte("q")))
	require.NoError(t, p.Update())

	assert.Equal(t, uint16(9), p.UDP().Length)
	assert.Equal(t, uint16(0xBEEF), p.UDP().Checksum)
}

func TestUpdateTunnelIsIdempotent(t *testing.T) {
	outer, err := layers.NewIPv4(layers.IPv4Config{
		Protocol: layers.IPProtocolUDP,
		Src:      netip.MustParseAddr("198.51.100.1"),
		Dst:      netip.MustParseAddr("198.51.100.2"),
	})
	require.NoError(t, err)
	inner, err := layers.NewIPv6(layers.IPv6Config{
		NextHeader: layers.IPProtocolTCP,
		Src:        netip.MustParseAddr("2001:db8::1"),
		Dst:        netip.MustParseAddr("2001:db8::2"),
	})
	require.NoError(t, err)
	tcp, err := layers.NewTCP(layers.TCPConfig{SrcPort: 1, DstPort: 2, Flags: layers.TCPFlagSYN})
	require.NoError(t, err)

	// Outer UDP carries a raw inner IPv6 packet via a custom shim.
	p, err := Build(outer, layers.NewUDP(layers.UDPConfig{DstPort: 4789}), layers.NewCustom("shim", make([]byte, 8)), inner, tcp)
	require.NoError(t, err)
	once := p.ToBytes()

	require.NoError(t, p.Update())
	assert.Equal(t, once, p.ToBytes())

	mismatches, err := p.Verify()
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	// The inner TCP checksum uses the inner IPv6 pseudo-header.
	ph := inner.PseudoHeader(layers.IPProtocolTCP, tcp.WireLength())
	var c codec.Checksum
	ph.AddTo(&c)
	c.Add(tcp.Encode())
	assert.Equal(t, uint16(0), c.Sum())
}

func TestVerifyReportsStaleFields(t *testing.T) {
	p := helloPacket(t)
	p.UDP().Length = 1
	p.IPv4().Checksum ^= 0xFFFF

	mismatches, err := p.Verify()
	require.NoError(t, err)
	require.Len(t, mismatches, 2)

	assert.Equal(t, Mismatch{Index: 1, Kind: layers.KindIPv4, Field: "checksum",
		Have: uint32(p.IPv4().Checksum), Want: uint32(p.IPv4().Checksum ^ 0xFFFF)}, mismatches[0])
	assert.Equal(t, "length", mismatches[1].Field)
	assert.Equal(t, uint32(1), mismatches[1].Have)
	assert.Equal(t, uint32(20), mismatches[1].Want)
	assert.Equal(t, uint16(1), p.UDP().Length, "Verify does not modify the packet")

	assert.Contains(t, mismatches[1].String(), "layer 2 UDP length")
}

func TestVerifyAcceptsZeroUDPChecksumOverIPv4(t *testing.T) {
	p := helloPacket(t)
	p.UDP().Checksum = 0

	mismatches, err := p.Verify()
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

// gopacketFrame serializes the same frame with gopacket's length and
// checksum fixing.
func gopacketFrame(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

var (
	oracleSrcMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	oracleDstMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	oraclePayload = []byte("the quick brown fox jumps over the lazy dog")
)

func TestUpdateMatchesGopacketIPv4UDP(t *testing.T) {
	eth := &gl.Ethernet{SrcMAC: oracleSrcMAC, DstMAC: oracleDstMAC, EthernetType: gl.EthernetTypeIPv4}
	ip := &gl.IPv4{
		Version: 4, TTL: 64, Id: 0x1234, Flags: gl.IPv4DontFragment, TOS: 0xB8,
		Protocol: gl.IPProtocolUDP,
		SrcIP:    net.IP{192, 0, 2, 1}, DstIP: net.IP{192, 0, 2, 2},
	}
	udp := &gl.UDP{SrcPort: 40000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	want := gopacketFrame(t, eth, ip, udp, gopacket.Payload(oraclePayload))

	ours, err := layers.NewIPv4(layers.IPv4Config{
		ID: 0x1234, Flags: layers.IPv4DontFragment, DSCP: 46,
		Protocol: layers.IPProtocolUDP,
		Src:      netip.MustParseAddr("192.0.2.1"), Dst: netip.MustParseAddr("192.0.2.2"),
	})
	require.NoError(t, err)
	p, err := Build(
		layers.NewEthernet(layers.EthernetConfig{Src: layers.MAC(oracleSrcMAC), Dst: layers.MAC(oracleDstMAC)}),
		ours,
		layers.NewUDP(layers.UDPConfig{SrcPort: 40000, DstPort: 53}),
		layers.NewPayload(oraclePayload),
	)
	require.NoError(t, err)
	assert.Equal(t, want, p.ToBytes())
}

func TestUpdateMatchesGopacketIPv6TCP(t *testing.T) {
	eth := &gl.Ethernet{SrcMAC: oracleSrcMAC, DstMAC: oracleDstMAC, EthernetType: gl.EthernetTypeIPv6}
	ip := &gl.IPv6{
		Version: 6, HopLimit: 64, FlowLabel: 0xABCDE, TrafficClass: 0x20,
		NextHeader: gl.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::10"), DstIP: net.ParseIP("2001:db8::20"),
	}
	tcp := &gl.TCP{
		SrcPort: 50123, DstPort: 443, Seq: 0x01020304, Ack: 0x0A0B0C0D,
		ACK: true, PSH: true, Window: 512,
		Options: []gl.TCPOption{
			{OptionType: gl.TCPOptionKindNop, OptionLength: 1},
			{OptionType: gl.TCPOptionKindNop, OptionLength: 1},
			{OptionType: gl.TCPOptionKindTimestamps, OptionLength: 10,
				OptionData: []byte{0, 0, 0, 1, 0, 0, 0, 2}},
		},
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	want := gopacketFrame(t, eth, ip, tcp, gopacket.Payload(oraclePayload))

	ip6, err := layers.NewIPv6(layers.IPv6Config{
		TrafficClass: 0x20, FlowLabel: 0xABCDE, NextHeader: layers.IPProtocolTCP,
		Src: netip.MustParseAddr("2001:db8::10"), Dst: netip.MustParseAddr("2001:db8::20"),
	})
	require.NoError(t, err)
	ourTCP, err := layers.NewTCP(layers.TCPConfig{
		SrcPort: 50123, DstPort: 443, Seq: 0x01020304, Ack: 0x0A0B0C0D,
		Flags: layers.TCPFlagACK | layers.TCPFlagPSH, Window: 512,
		Options: []layers.TCPOption{layers.NopOption(), layers.NopOption(), layers.TimestampsOption(1, 2)},
	})
	require.NoError(t, err)
	p, err := Build(
		layers.NewEthernet(layers.EthernetConfig{
			Src: layers.MAC(oracleSrcMAC), Dst: layers.MAC(oracleDstMAC), EtherType: layers.EtherTypeIPv6,
		}),
		ip6, ourTCP, layers.NewPayload(oraclePayload),
	)
	require.NoError(t, err)
	assert.Equal(t, want, p.ToBytes())
}

func TestDecodeMatchesGopacket(t *testing.T) {
	for _, tt := range updateVectors {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromBytes(mustHex(t, tt.data))
			require.NoError(t, err)
			require.NoError(t, p.Update())
			raw := p.ToBytes()

			gp := gopacket.NewPacket(raw, gl.LayerTypeEthernet, gopacket.Default)

			eth := gp.Layer(gl.LayerTypeEthernet).(*gl.Ethernet)
			assert.Equal(t, []byte(eth.DstMAC), p.Ethernet().Dst[:])
			assert.Equal(t, uint16(eth.EthernetType), uint16(p.Ethernet().EtherType))

			if l := gp.Layer(gl.LayerTypeIPv4); l != nil {
				ip := l.(*gl.IPv4)
				assert.Equal(t, ip.SrcIP.String(), p.IPv4().Src.String())
				assert.Equal(t, ip.Checksum, p.IPv4().Checksum)
				assert.Equal(t, uint8(ip.Protocol), uint8(p.IPv4().Protocol))
			}
			if l := gp.Layer(gl.LayerTypeIPv6); l != nil {
				ip := l.(*gl.IPv6)
				assert.Equal(t, ip.DstIP.String(), p.IPv6().Dst.String())
				assert.Equal(t, ip.FlowLabel, p.IPv6().FlowLabel())
			}
			if l := gp.Layer(gl.LayerTypeTCP); l != nil {
				tcp := l.(*gl.TCP)
				assert.Equal(t, uint16(tcp.SrcPort), p.TCP().SrcPort)
				assert.Equal(t, tcp.Seq, p.TCP().Seq)
				assert.Equal(t, tcp.Checksum, p.TCP().Checksum)
				assert.Equal(t, tcp.Payload, p.Payload().Data)
			}
			if l := gp.Layer(gl.LayerTypeUDP); l != nil {
				udp := l.(*gl.UDP)
				assert.Equal(t, uint16(udp.DstPort), p.UDP().DstPort)
				assert.Equal(t, udp.Checksum, p.UDP().Checksum)
			}
		})
	}
}
