package packet

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// DecodingLayerParser keeps its layers preallocated and is not safe for
// concurrent use. Every Decode call borrows its own instance.
type decoder struct {
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	icmp    layers.ICMPv4
	payload gopacket.Payload

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func newDecoder() *decoder {
	d := &decoder{
		decoded: make([]gopacket.LayerType, 0, 8),
	}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.dot1q, &d.ip4, &d.tcp, &d.udp, &d.icmp, &d.payload)
	return d
}

var decoders = sync.Pool{
	New: func() interface{} { return newDecoder() },
}

// Decode parses link, network and transport headers of a raw frame.
// On ErrUnsupportedProtocol the partially decoded packet is returned as well,
// so the caller may handle it on a fallback path.
func Decode(ingressPort uint32, raw []byte) (*Packet, error) {
	if len(raw) < MinFrameLen {
		return nil, fmt.Errorf("%w: frame length %d is less than %d",
			ErrMalformedPacket, len(raw), MinFrameLen)
	}

	d := decoders.Get().(*decoder)
	defer decoders.Put(d)

	return d.decode(ingressPort, raw)
}

func (d *decoder) decode(ingressPort uint32, raw []byte) (*Packet, error) {
	var unsupported gopacket.UnsupportedLayerType
	var haveIP, haveTransport bool

	err := d.parser.DecodeLayers(raw, &d.decoded)
	if err != nil && !errors.As(err, &unsupported) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPacket, err)
	}
	if d.parser.Truncated {
		return nil, fmt.Errorf("%w: declared length exceeds captured %d bytes",
			ErrMalformedPacket, len(raw))
	}

	pkt := &Packet{IngressPort: ingressPort}
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			pkt.SrcMAC = append(net.HardwareAddr(nil), d.eth.SrcMAC...)
			pkt.DstMAC = append(net.HardwareAddr(nil), d.eth.DstMAC...)
		case layers.LayerTypeDot1Q:
			pkt.VlanID = d.dot1q.VLANIdentifier
		case layers.LayerTypeIPv4:
			haveIP = true
			pkt.Src, _ = netip.AddrFromSlice(d.ip4.SrcIP.To4())
			pkt.Dst, _ = netip.AddrFromSlice(d.ip4.DstIP.To4())
			pkt.IPProto = uint8(d.ip4.Protocol)
		case layers.LayerTypeTCP:
			haveTransport = true
			pkt.Protocol = ProtocolTCP
			pkt.SrcPort = uint16(d.tcp.SrcPort)
			pkt.DstPort = uint16(d.tcp.DstPort)
		case layers.LayerTypeUDP:
			haveTransport = true
			pkt.Protocol = ProtocolUDP
			pkt.SrcPort = uint16(d.udp.SrcPort)
			pkt.DstPort = uint16(d.udp.DstPort)
		case layers.LayerTypeICMPv4:
			haveTransport = true
			pkt.Protocol = ProtocolICMP
			pkt.ICMPType = d.icmp.TypeCode.Type()
			pkt.ICMPCode = d.icmp.TypeCode.Code()
		}
	}

	// Application layers behind a decoded transport are not our business.
	// Anything that stops earlier is.
	switch {
	case err != nil && !haveTransport:
		return pkt, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, gopacket.LayerType(unsupported))
	case !haveIP:
		return pkt, fmt.Errorf("%w: not an IPv4 frame", ErrUnsupportedProtocol)
	case !haveTransport:
		// IPv4 says TCP/UDP/ICMP, but there is nothing behind the header
		return nil, fmt.Errorf("%w: missing %s header", ErrMalformedPacket,
			layers.IPProtocol(pkt.IPProto))
	}

	return pkt, nil
}
