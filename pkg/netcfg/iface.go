// netcfg is a stateless helper to setup interface attributes
// and neighbour entries used by resolved on-demand flows
package netcfg

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
)

func linkByName(ifname string) (netlink.Link, error) {
	iface, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup interface %s: %w", ifname, err)
	}
	return iface, nil
}

// InterfaceIndex returns kernel index of interface `ifname`
func InterfaceIndex(ifname string) (int, error) {
	iface, err := linkByName(ifname)
	if err != nil {
		return 0, err
	}
	return iface.Attrs().Index, nil
}

func InterfaceUp(ifname string) error {
	iface, err := linkByName(ifname)
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(iface)
}

// HostHasIP is true when `ipAddress` is configured on any local interface
func HostHasIP(ipAddress netip.Addr) bool {
	ip := ipAddress.AsSlice()
	ifaceAddrs, _ := netlink.AddrList(nil, nl.FAMILY_ALL)
	for _, addr := range ifaceAddrs {
		if addr.IP.Equal(ip) {
			return true
		}
	}
	return false
}
