// packet decodes frames punted by the virtual switch just deep enough
// to correlate an on-demand resolution request with its reply.
package packet

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var (
	ErrMalformedPacket     = errors.New("malformed packet")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

const (
	ethernetHeaderLen = 14
	ipv4MinHeaderLen  = 20

	// MinFrameLen is the shortest frame that may carry an IPv4 header
	MinFrameLen = ethernetHeaderLen + ipv4MinHeaderLen
)

type Protocol uint8

const (
	ProtocolOther Protocol = iota
	ProtocolTCP
	ProtocolUDP
	ProtocolICMP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	case ProtocolICMP:
		return "ICMP"
	default:
		return "OTHER"
	}
}

// Packet holds header fields of a decoded frame.
// All fields are copies, nothing references the raw frame.
type Packet struct {
	IngressPort uint32
	VlanID      uint16
	SrcMAC      net.HardwareAddr
	DstMAC      net.HardwareAddr
	Src         netip.Addr
	Dst         netip.Addr
	IPProto     uint8 // protocol number as declared in IPv4 header
	Protocol    Protocol
	SrcPort     uint16
	DstPort     uint16
	ICMPType    uint8
	ICMPCode    uint8
}

// Identity is the correlation key of one logical unresolved destination:
// the same source talking to the same destination on the same segment.
func (p *Packet) Identity() string {
	return fmt.Sprintf("%d/%s/%s", p.VlanID, p.Src, p.Dst)
}

func (p *Packet) String() string {
	switch p.Protocol {
	case ProtocolTCP, ProtocolUDP:
		return fmt.Sprintf("%s vlan %d %s:%d -> %s:%d (port %d)", p.Protocol, p.VlanID,
			p.Src, p.SrcPort, p.Dst, p.DstPort, p.IngressPort)
	case ProtocolICMP:
		return fmt.Sprintf("%s vlan %d %s -> %s type %d code %d (port %d)", p.Protocol, p.VlanID,
			p.Src, p.Dst, p.ICMPType, p.ICMPCode, p.IngressPort)
	default:
		return fmt.Sprintf("proto %d vlan %d %s -> %s (port %d)", p.IPProto, p.VlanID,
			p.Src, p.Dst, p.IngressPort)
	}
}
