package ondemand

import (
	"context"
	"time"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
)

func (e *Engine) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweep(e.now())
		}
	}
}

// sweep evicts requests older than the dwell time.
// There is no retry: a later packet for the same destination is a new request.
func (e *Engine) sweep(now time.Time) []*PendingRequest {
	expired := e.table.Expire(now, e.cfg.DwellTime)
	for _, rec := range expired {
		inc(&e.counters.timeouts)
		logger.Warning().Println(pkgName, ErrTimeout, rec, "abandoned after", now.Sub(rec.CreatedAt))
	}
	e.lastSweep.Store(now.UnixNano())

	return expired
}
