package programmer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/netip"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
	"github.com/pkommoju/alcor-control-agent/pkg/netcfg"
)

const (
	ovsOfctl = "ovs-ofctl"

	// Unicast to known L2 neighbours in tunnel bridge
	neighbourTable    = 20
	neighbourPriority = 50
)

type OVSConfig struct {
	TunnelBridge      string
	IntegrationBridge string
	TunnelPort        string
	// Runner defaults to exec of local binaries
	Runner Runner
	// IsLocal reports if remote host address belongs to this host
	IsLocal func(addr netip.Addr) bool
}

// OVS programs L2 neighbour flows in Open vSwitch tunnel bridge
// and re-injects the packet that triggered the resolution.
type OVS struct {
	cfg     OVSConfig
	run     Runner
	isLocal func(addr netip.Addr) bool
}

func NewOVS(cfg OVSConfig) *OVS {
	o := &OVS{
		cfg:     cfg,
		run:     cfg.Runner,
		isLocal: cfg.IsLocal,
	}
	if o.run == nil {
		o.run = execRunner
	}
	if o.isLocal == nil {
		o.isLocal = netcfg.HostHasIP
	}
	return o
}

func (o *OVS) Name() string {
	return "OVS"
}

func (o *OVS) Program(ctx context.Context, res *ondemand.Resolution) error {
	if err := validate(res); err != nil {
		return err
	}

	// Neighbour on the same host is reachable through integration bridge,
	// no tunnel flow is needed.
	if !o.isLocal(res.Endpoint.RemoteHostIP) {
		_, err := o.run(ctx, ovsOfctl, "add-flow", o.cfg.TunnelBridge, o.neighbourFlow(res))
		if err != nil {
			return err
		}
	}

	if err := o.packetOut(ctx, res); err != nil {
		return err
	}

	logger.Debug().Println(pkgName, o.Name(), res.Identity, "->", res.Endpoint.VirtualMAC,
		"via", res.Endpoint.RemoteHostIP, "tunnel", res.Endpoint.TunnelID)
	return nil
}

func (o *OVS) neighbourFlow(res *ondemand.Resolution) string {
	ep := &res.Endpoint
	var vlan uint16
	if res.Request != nil && res.Request.Packet != nil {
		vlan = res.Request.Packet.VlanID
	}

	// dl_vlan=0 would match priority tagged frames only
	match, strip := "vlan_tci=0x0000/0x1fff", ""
	if vlan != 0 {
		match, strip = fmt.Sprintf("dl_vlan=%d", vlan), "strip_vlan,"
	}

	return fmt.Sprintf("table=%d,priority=%d,%s,dl_dst=%s,"+
		"actions=%sload:%d->NXM_NX_TUN_ID[],set_field:%s->tun_dst,output:%s",
		neighbourTable, neighbourPriority, match, ep.VirtualMAC,
		strip, ep.TunnelID, ep.RemoteHostIP, o.cfg.TunnelPort)
}

// packetOut sends the original frame back through integration bridge,
// now that forwarding state exists for it.
func (o *OVS) packetOut(ctx context.Context, res *ondemand.Resolution) error {
	if res.Request == nil || len(res.Request.Payload) == 0 {
		return nil
	}

	_, err := o.run(ctx, ovsOfctl, "packet-out", o.cfg.IntegrationBridge,
		"CONTROLLER", "NORMAL", hex.EncodeToString(res.Request.Payload))
	return err
}
