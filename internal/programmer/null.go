package programmer

import (
	"context"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
)

// Null only logs resolutions. Useful for dry runs.
type Null struct{}

func (n *Null) Name() string {
	return "Null"
}

func (n *Null) Program(ctx context.Context, res *ondemand.Resolution) error {
	if err := validate(res); err != nil {
		return err
	}
	logger.Info().Println(pkgName, n.Name(), "would program", res.Identity, "->",
		res.Endpoint.VirtualMAC, "via", res.Endpoint.RemoteHostIP, "tunnel", res.Endpoint.TunnelID,
		"resolved in", res.Latency)
	return nil
}
