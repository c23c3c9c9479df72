package netcfg

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// FdbAdd points `mac` on VXLAN device `ifname` to remote tunnel endpoint `vtep`.
// Same as `bridge fdb append <mac> dev <ifname> dst <vtep> self permanent`
func FdbAdd(ifname string, mac net.HardwareAddr, vtep netip.Addr) error {
	iface, err := linkByName(ifname)
	if err != nil {
		return err
	}

	entry := netlink.Neigh{
		LinkIndex:    iface.Attrs().Index,
		Family:       unix.AF_BRIDGE,
		State:        netlink.NUD_PERMANENT,
		Flags:        netlink.NTF_SELF,
		IP:           vtep.AsSlice(),
		HardwareAddr: mac,
	}

	// Append keeps other remote endpoints of the same MAC (e.g. flood entries)
	err = netlink.NeighAppend(&entry)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("fdb %s dst %s dev %s: %w", mac, vtep, ifname, err)
	}
	return nil
}

// NeighSet installs permanent ARP entry `ip` -> `mac` on interface `ifname`.
// Existing entry is replaced.
func NeighSet(ifname string, ip netip.Addr, mac net.HardwareAddr) error {
	iface, err := linkByName(ifname)
	if err != nil {
		return err
	}

	entry := netlink.Neigh{
		LinkIndex:    iface.Attrs().Index,
		Family:       unix.AF_INET,
		State:        netlink.NUD_PERMANENT,
		Type:         unix.RTN_UNICAST,
		IP:           ip.AsSlice(),
		HardwareAddr: mac,
	}
	if ip.Is6() {
		entry.Family = unix.AF_INET6
	}

	err = netlink.NeighSet(&entry)
	if err != nil {
		return fmt.Errorf("neigh %s lladdr %s dev %s: %w", ip, mac, ifname, err)
	}
	return nil
}
