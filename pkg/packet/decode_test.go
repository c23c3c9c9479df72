package packet

import (
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	testSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	testSrcIP  = net.IPv4(10, 0, 0, 2).To4()
	testDstIP  = net.IPv4(10, 0, 0, 3).To4()
	// long enough to keep frames above the ethernet minimum, so no padding is added
	testPayload = []byte("on-demand resolution test payload")
)

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("serialize: %s", err)
	}
	return buf.Bytes()
}

func ethernet(et layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: et}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: testSrcIP, DstIP: testDstIP}
}

func tcpFrame(t *testing.T) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 8080, SYN: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(testPayload))
}

func TestDecode(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.2")
	dst := netip.MustParseAddr("10.0.0.3")

	udpIP := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	udp.SetNetworkLayerForChecksum(udpIP)

	tests := []struct {
		name  string
		frame func(t *testing.T) []byte
		want  *Packet
	}{
		{
			"TCP",
			tcpFrame,
			&Packet{IngressPort: 7, SrcMAC: testSrcMAC, DstMAC: testDstMAC, Src: src, Dst: dst,
				IPProto: 6, Protocol: ProtocolTCP, SrcPort: 40000, DstPort: 8080},
		},
		{
			"VlanUDP",
			func(t *testing.T) []byte {
				return serialize(t, ethernet(layers.EthernetTypeDot1Q),
					&layers.Dot1Q{VLANIdentifier: 100, Type: layers.EthernetTypeIPv4},
					udpIP, udp, gopacket.Payload(testPayload))
			},
			&Packet{IngressPort: 7, VlanID: 100, SrcMAC: testSrcMAC, DstMAC: testDstMAC, Src: src, Dst: dst,
				IPProto: 17, Protocol: ProtocolUDP, SrcPort: 5353, DstPort: 53},
		},
		{
			"ICMP",
			func(t *testing.T) []byte {
				return serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4),
					&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1},
					gopacket.Payload(testPayload))
			},
			&Packet{IngressPort: 7, SrcMAC: testSrcMAC, DstMAC: testDstMAC, Src: src, Dst: dst,
				IPProto: 1, Protocol: ProtocolICMP, ICMPType: layers.ICMPv4TypeEchoRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(7, tt.frame(t))
			if err != nil {
				t.Fatalf("Decode failed: %s", err)
			}
			if diff := cmp.Diff(tt.want, got, addrComparer); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	arp := serialize(t, ethernet(layers.EthernetTypeARP), &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testSrcMAC,
		SourceProtAddress: testSrcIP,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    testDstIP,
	})
	gre := serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolGRE),
		gopacket.Payload(testPayload))

	for name, frame := range map[string][]byte{"ARP": arp, "GRE": gre} {
		pkt, err := Decode(1, frame)
		if !errors.Is(err, ErrUnsupportedProtocol) {
			t.Errorf("%s: expected unsupported protocol, got %v", name, err)
		}
		if pkt == nil {
			t.Errorf("%s: expected partially decoded packet", name)
		}
	}

	pkt, _ := Decode(1, gre)
	if pkt.Protocol != ProtocolOther || pkt.IPProto != uint8(layers.IPProtocolGRE) {
		t.Errorf("unexpected GRE decode: %s", pkt)
	}
}

func TestDecodeTruncated(t *testing.T) {
	frame := tcpFrame(t)

	for i := 0; i < len(frame); i++ {
		pkt, err := Decode(1, frame[:i])
		if !errors.Is(err, ErrMalformedPacket) {
			t.Fatalf("prefix %d of %d: expected malformed packet, got %v", i, len(frame), err)
		}
		if pkt != nil {
			t.Fatalf("prefix %d: unexpected packet %s", i, pkt)
		}
	}
}

func TestDecodeInconsistentLengths(t *testing.T) {
	const ipOffset = ethernetHeaderLen
	const tcpOffset = ipOffset + ipv4MinHeaderLen

	tests := []struct {
		name   string
		mangle func(b []byte) []byte
	}{
		{"IHL too small", func(b []byte) []byte {
			b[ipOffset] = 0x43
			return b
		}},
		{"IHL beyond buffer", func(b []byte) []byte {
			b[ipOffset] = 0x4f
			return b[:tcpOffset+20]
		}},
		{"total length below header", func(b []byte) []byte {
			b[ipOffset+2], b[ipOffset+3] = 0x00, 0x10
			return b
		}},
		{"total length beyond buffer", func(b []byte) []byte {
			b[ipOffset+2], b[ipOffset+3] = 0x05, 0xdc
			return b
		}},
		{"TCP data offset beyond buffer", func(b []byte) []byte {
			b[tcpOffset+12] = 0xf0
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(1, tt.mangle(tcpFrame(t)))
			if !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("expected malformed packet, got %v", err)
			}
		})
	}
}

func TestDecodeRandomInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(31))
	valid := tcpFrame(t)

	for i := 0; i < 5000; i++ {
		var b []byte
		if i%2 == 0 {
			b = make([]byte, rnd.Intn(128))
			rnd.Read(b)
		} else {
			// flip a few bytes of a valid frame
			b = append([]byte(nil), valid...)
			for j := 0; j < 4; j++ {
				b[rnd.Intn(len(b))] = byte(rnd.Intn(256))
			}
		}

		pkt, err := Decode(1, b)
		if err == nil && pkt == nil {
			t.Fatalf("no error and no packet for input %x", b)
		}
		if err != nil && !errors.Is(err, ErrMalformedPacket) && !errors.Is(err, ErrUnsupportedProtocol) {
			t.Fatalf("unclassified error %v", err)
		}
	}
}

func TestIdentity(t *testing.T) {
	a := Packet{VlanID: 10, Src: netip.MustParseAddr("10.0.0.2"), Dst: netip.MustParseAddr("10.0.0.3"),
		SrcPort: 1000, DstPort: 80}
	b := a
	b.SrcPort, b.DstPort = 2000, 443

	if a.Identity() != b.Identity() {
		t.Errorf("same destination expected same identity: %s vs %s", a.Identity(), b.Identity())
	}

	b.VlanID = 11
	if a.Identity() == b.Identity() {
		t.Errorf("different segments share identity %s", a.Identity())
	}
}
