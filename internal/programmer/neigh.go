package programmer

import (
	"context"
	"net"
	"net/netip"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
	"github.com/pkommoju/alcor-control-agent/pkg/netcfg"
)

// Neigh programs kernel VXLAN forwarding: a bridge FDB entry for the
// virtual MAC on VXLAN device and an ARP entry on the tenant bridge.
type Neigh struct {
	vxlanDevice  string
	bridgeDevice string

	fdbAdd   func(ifname string, mac net.HardwareAddr, vtep netip.Addr) error
	neighSet func(ifname string, ip netip.Addr, mac net.HardwareAddr) error
	isLocal  func(addr netip.Addr) bool
}

func NewNeigh(vxlanDevice, bridgeDevice string) *Neigh {
	return &Neigh{
		vxlanDevice:  vxlanDevice,
		bridgeDevice: bridgeDevice,
		fdbAdd:       netcfg.FdbAdd,
		neighSet:     netcfg.NeighSet,
		isLocal:      netcfg.HostHasIP,
	}
}

func (n *Neigh) Name() string {
	return "Neigh"
}

func (n *Neigh) Program(ctx context.Context, res *ondemand.Resolution) error {
	if err := validate(res); err != nil {
		return err
	}
	ep := &res.Endpoint

	if !n.isLocal(ep.RemoteHostIP) {
		if err := n.fdbAdd(n.vxlanDevice, ep.VirtualMAC, ep.RemoteHostIP); err != nil {
			return err
		}
	}

	if err := n.neighSet(n.bridgeDevice, ep.VirtualIP, ep.VirtualMAC); err != nil {
		return err
	}

	logger.Debug().Println(pkgName, n.Name(), ep.VirtualIP, "lladdr", ep.VirtualMAC,
		"dst", ep.RemoteHostIP)
	return nil
}
