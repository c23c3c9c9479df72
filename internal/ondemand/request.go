package ondemand

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pkommoju/alcor-control-agent/pkg/packet"
)

// PendingRequest is one in-flight resolution attempt.
// It is never modified after admission and is removed from the table exactly once.
type PendingRequest struct {
	Identity    string
	CreatedAt   time.Time
	IngressPort uint32
	Protocol    packet.Protocol
	Payload     []byte         // owned copy of the original frame
	Packet      *packet.Packet // decoded context, may be nil
}

func (pr *PendingRequest) String() string {
	return fmt.Sprintf("%s [%s, port %d, %d bytes]", pr.Identity, pr.Protocol,
		pr.IngressPort, len(pr.Payload))
}

// Request is the outbound query sent to the remote authority.
type Request struct {
	Identity string
	Protocol packet.Protocol
	Packet   *packet.Packet
}

type Status int

const (
	StatusApplied Status = iota
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoint is the forwarding state the authority resolved an identity into.
type Endpoint struct {
	VirtualIP    netip.Addr
	VirtualMAC   net.HardwareAddr
	RemoteHostIP netip.Addr // tunnel destination, the host behind VirtualIP
	TunnelID     uint32
}

// Reply is an asynchronous answer of the remote authority,
// matched to its request by Identity.
type Reply struct {
	Identity   string
	Status     Status
	ReceivedAt time.Time
	Endpoint   Endpoint
}

// Resolution is handed to the forwarding programmer on a successful reply.
type Resolution struct {
	Identity string
	Endpoint Endpoint
	Request  *PendingRequest
	Latency  time.Duration
}
