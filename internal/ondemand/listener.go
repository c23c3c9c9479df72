package ondemand

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
)

// listen drains authority replies in arrival order.
// Replies are applied on the worker pool, so draining never waits for programming.
func (e *Engine) listen(ctx context.Context) error {
	logger.Debug().Println(pkgName, "reply listener started")
	defer logger.Debug().Println(pkgName, "reply listener stopped")

	for {
		reply, err := e.transport.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTransportClosed) {
				return nil
			}
			return fmt.Errorf("reply listener: %w", err)
		}

		err = e.pool.Submit(func() {
			e.logResult(e.resolve(reply))
		})
		if err != nil {
			logger.Warning().Println(pkgName, "dropping reply", reply.Identity, err)
		}
	}
}

// resolve consumes the pending request matching reply.
// A reply for an identity that is not pending is a harmless no-op.
func (e *Engine) resolve(reply *Reply) error {
	rec, ok := e.table.Take(reply.Identity)
	if !ok {
		inc(&e.counters.late)
		return fmt.Errorf("%w: %s", ErrLateReply, reply.Identity)
	}

	latency := reply.ReceivedAt.Sub(rec.CreatedAt)
	e.counters.observeLatency(latency)

	if reply.Status != StatusApplied {
		// No retry. Next packet to the same destination starts a new request.
		inc(&e.counters.failed)
		return fmt.Errorf("%w: %s (%s after %s)", ErrReplyFailed, rec, reply.Status, latency)
	}
	inc(&e.counters.resolved)
	logger.Debug().Println(pkgName, "resolved", rec, "in", latency)

	err := e.programmer.Program(e.taskCtx, &Resolution{
		Identity: reply.Identity,
		Endpoint: reply.Endpoint,
		Request:  rec,
		Latency:  latency,
	})
	if err != nil {
		inc(&e.counters.programErrors)
		return fmt.Errorf("%w: %s: %s", ErrProgramFailure, rec.Identity, err)
	}

	return nil
}
