// programmer installs forwarding state for destinations resolved by the authority
package programmer

import (
	"errors"
	"fmt"

	"github.com/pkommoju/alcor-control-agent/internal/config"
	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
	"github.com/pkommoju/alcor-control-agent/pkg/netcfg"
)

const pkgName = "Programmer. "

var ErrInvalidEndpoint = errors.New("invalid endpoint")

// New creates programmer configured with `ACA_PROGRAMMER`
func New(ptype int) (prog ondemand.Programmer, err error) {
	switch ptype {
	case config.ProgrammerOVS:
		loadKernelModule("openvswitch")
		prog = NewOVS(OVSConfig{
			TunnelBridge:      config.GetTunnelBridge(),
			IntegrationBridge: config.GetIntegrationBridge(),
			TunnelPort:        config.GetTunnelPort(),
		})
	case config.ProgrammerNeigh:
		loadKernelModule("vxlan")
		prog = NewNeigh(config.GetVxlanDevice(), config.GetNeighBridge())
	case config.ProgrammerNone:
		prog = &Null{}
	default:
		err = fmt.Errorf("unexpected programmer type %d", ptype)
	}
	return
}

// Module may be built in or loaded by other means. Programming reports real failures.
func loadKernelModule(name string) {
	if err := netcfg.LoadKernelModule(name); err != nil {
		logger.Warning().Println(pkgName, err)
	}
}

func validate(res *ondemand.Resolution) error {
	ep := &res.Endpoint
	switch {
	case !ep.VirtualIP.IsValid():
		return fmt.Errorf("%w: %s: no virtual ip", ErrInvalidEndpoint, res.Identity)
	case len(ep.VirtualMAC) != 6:
		return fmt.Errorf("%w: %s: virtual mac %q", ErrInvalidEndpoint, res.Identity, ep.VirtualMAC)
	case !ep.RemoteHostIP.IsValid():
		return fmt.Errorf("%w: %s: no remote host ip", ErrInvalidEndpoint, res.Identity)
	}
	return nil
}
