package authority

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pkommoju/alcor-control-agent/internal/env"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
)

const (
	requestType = "ON_DEMAND"
	replyType   = "ON_DEMAND_REPLY"
)

// Generic message struct (common part for all messages)
type MessageHeader struct {
	ID        string `json:"id"`
	MsgType   string `json:"type"`
	Timestamp string `json:"executed_at,omitempty"`
}

type requestMessage struct {
	MessageHeader
	Data struct {
		Protocol    string `json:"protocol"`
		IngressPort uint32 `json:"in_port"`
		VlanID      uint16 `json:"vlan_id"`
		SrcMAC      string `json:"src_mac"`
		DstMAC      string `json:"dst_mac"`
		SrcIP       string `json:"src_ip"`
		DstIP       string `json:"dst_ip"`
		SrcPort     uint16 `json:"src_port,omitempty"`
		DstPort     uint16 `json:"dst_port,omitempty"`
		ICMPType    uint8  `json:"icmp_type,omitempty"`
		ICMPCode    uint8  `json:"icmp_code,omitempty"`
	} `json:"data"`
}

type replyMessage struct {
	MessageHeader
	Data struct {
		Status       string `json:"status"`
		VirtualIP    string `json:"virtual_ip"`
		VirtualMAC   string `json:"virtual_mac"`
		RemoteHostIP string `json:"remote_host_ip"`
		TunnelID     uint32 `json:"tunnel_id"`
	} `json:"data"`
}

func newRequestMessage(req *ondemand.Request, now time.Time) *requestMessage {
	msg := requestMessage{
		MessageHeader: MessageHeader{
			ID:        req.Identity,
			MsgType:   requestType,
			Timestamp: now.Format(env.TimeFormat),
		},
	}
	msg.Data.Protocol = req.Protocol.String()

	if pkt := req.Packet; pkt != nil {
		msg.Data.IngressPort = pkt.IngressPort
		msg.Data.VlanID = pkt.VlanID
		msg.Data.SrcMAC = pkt.SrcMAC.String()
		msg.Data.DstMAC = pkt.DstMAC.String()
		msg.Data.SrcIP = pkt.Src.String()
		msg.Data.DstIP = pkt.Dst.String()
		msg.Data.SrcPort = pkt.SrcPort
		msg.Data.DstPort = pkt.DstPort
		msg.Data.ICMPType = pkt.ICMPType
		msg.Data.ICMPCode = pkt.ICMPCode
	}

	return &msg
}

// parseReply converts authority reply to engine representation.
// An applied reply with unusable endpoint data is reported as failed.
func parseReply(raw []byte, receivedAt time.Time) (*ondemand.Reply, error) {
	var msg replyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.MsgType != replyType {
		return nil, fmt.Errorf("unexpected message type %q", msg.MsgType)
	}
	if msg.ID == "" || msg.ID == env.MessageDefaultID {
		return nil, fmt.Errorf("reply without request id")
	}

	reply := ondemand.Reply{
		Identity:   msg.ID,
		Status:     ondemand.StatusFailed,
		ReceivedAt: receivedAt,
	}
	if msg.Data.Status != ondemand.StatusApplied.String() {
		return &reply, nil
	}

	ep, err := parseEndpoint(&msg)
	if err != nil {
		return &reply, fmt.Errorf("reply %s: %w", msg.ID, err)
	}
	reply.Status = ondemand.StatusApplied
	reply.Endpoint = ep

	return &reply, nil
}

func parseEndpoint(msg *replyMessage) (ep ondemand.Endpoint, err error) {
	ep.VirtualIP, err = netip.ParseAddr(msg.Data.VirtualIP)
	if err != nil {
		return ep, fmt.Errorf("virtual ip: %w", err)
	}
	ep.VirtualMAC, err = net.ParseMAC(msg.Data.VirtualMAC)
	if err != nil {
		return ep, fmt.Errorf("virtual mac: %w", err)
	}
	ep.RemoteHostIP, err = netip.ParseAddr(msg.Data.RemoteHostIP)
	if err != nil {
		return ep, fmt.Errorf("remote host ip: %w", err)
	}
	ep.TunnelID = msg.Data.TunnelID

	return ep, nil
}

func messageType(raw []byte) (string, error) {
	var hdr MessageHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return "", err
	}
	return hdr.MsgType, nil
}
