// ondemand resolves packets for which the virtual switch has no forwarding state.
// Each unknown destination is queried once at the remote authority, the asynchronous
// reply is matched back to its pending request and handed to the forwarding programmer.
// Requests left unanswered longer than the dwell time are dropped.
package ondemand

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/pkg/packet"
	"github.com/pkommoju/alcor-control-agent/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const pkgName = "OnDemand. "

const (
	DefaultDwellTime     = 10 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

const (
	stateIdle = iota
	stateRunning
	stateHalted
	stateStopping
	stateStopped
)

// Transport delivers resolution requests to the remote authority and its replies back.
type Transport interface {
	// Send hands the request over to the transport and returns without waiting for a reply
	Send(req *Request) error
	// Next blocks until a reply arrives. Returns ErrTransportClosed after Close.
	Next(ctx context.Context) (*Reply, error)
	Close() error
}

// Programmer installs the resolved forwarding state
type Programmer interface {
	Program(ctx context.Context, res *Resolution) error
}

// FallbackFunc receives packets the engine does not resolve
type FallbackFunc func(pkt *packet.Packet, raw []byte)

// Config is read once on engine creation
type Config struct {
	Workers       int
	DwellTime     time.Duration
	SweepInterval time.Duration
}

type Option func(e *Engine)

// WithClock replaces time.Now as the engine time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithFallback(f FallbackFunc) Option {
	return func(e *Engine) {
		e.fallback = f
	}
}

type Engine struct {
	cfg        Config
	table      *Table
	pool       *pool
	transport  Transport
	programmer Programmer
	fallback   FallbackFunc
	now        func() time.Time
	counters   *counters

	state     state.Machine
	lastSweep atomic.Int64 // unix nanoseconds
	lock      sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
	done      <-chan struct{}
	taskCtx   context.Context
}

func New(cfg Config, tr Transport, prog Programmer, opts ...Option) (*Engine, error) {
	if tr == nil {
		return nil, errors.New("transport is required")
	}
	if prog == nil {
		return nil, errors.New("programmer is required")
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.DwellTime <= 0 {
		cfg.DwellTime = DefaultDwellTime
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	e := &Engine{
		cfg:        cfg,
		table:      NewTable(),
		pool:       newPool(cfg.Workers),
		transport:  tr,
		programmer: prog,
		now:        time.Now,
		counters:   newCounters(),
		taskCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}

	logger.Debug().Println(pkgName, "workers:", cfg.Workers, "dwell time:", cfg.DwellTime,
		"sweep interval:", cfg.SweepInterval)

	return e, nil
}

func (e *Engine) Name() string {
	return "ON_DEMAND"
}

// Start launches worker pool, reply listener and expiry sweeper.
// An engine can be started only once.
func (e *Engine) Start(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.state.Change(stateIdle, stateRunning) {
		return ErrRunning
	}

	// In-flight tasks must finish even when the parent is cancelled
	e.taskCtx = context.WithoutCancel(ctx)

	ctx, e.cancel = context.WithCancel(ctx)
	e.group, ctx = errgroup.WithContext(ctx)
	done := make(chan struct{})
	e.done = done

	e.pool.start()
	e.group.Go(func() error { return e.listen(ctx) })
	e.group.Go(func() error { return e.sweepLoop(ctx) })

	// Without listener and sweeper nothing would ever leave the table,
	// so new packets are refused from here on.
	go func() {
		<-ctx.Done()
		if e.state.Change(stateRunning, stateHalted) {
			logger.Warning().Println(pkgName, "background loops terminated, refusing new packets")
		}
		close(done)
	}()

	logger.Info().Println(pkgName, "engine started")
	return nil
}

// Stop closes the transport, joins background loops, lets queued tasks finish
// and abandons requests that are still pending.
func (e *Engine) Stop() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.state.Change(stateRunning, stateStopping) &&
		!e.state.Change(stateHalted, stateStopping) {
		return ErrStopped
	}

	if err := e.transport.Close(); err != nil {
		logger.Warning().Println(pkgName, "transport close:", err)
	}
	e.cancel()
	err := e.group.Wait()

	e.pool.stop()
	if count := e.table.Clear(); count > 0 {
		logger.Info().Println(pkgName, "abandoned", count, "pending requests")
	}

	e.state.Set(stateStopped)
	logger.Info().Println(pkgName, "engine stopped")

	return err
}

// Done is closed once background loops are told to terminate, on Stop,
// on parent context cancel or on a fatal transport error. The engine
// no longer accepts packets at that point. Nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.done
}

func (e *Engine) Running() bool {
	return e.state.Is(stateRunning)
}

// HandleUnresolvedPacket schedules resolution of a packet the switch has no
// forwarding state for. It never blocks and raw may be reused after it returns.
func (e *Engine) HandleUnresolvedPacket(ingressPort uint32, raw []byte) {
	if !e.Running() {
		logger.Debug().Println(pkgName, "engine not running, dropping packet from port", ingressPort)
		return
	}

	payload := make([]byte, len(raw))
	copy(payload, raw)

	err := e.pool.Submit(func() {
		e.logResult(e.admit(ingressPort, payload))
	})
	if err != nil {
		logger.Warning().Println(pkgName, "dropping packet from port", ingressPort, err)
	}
}

// admit decodes payload and issues a resolution request for a new identity.
// payload must be owned by the engine.
func (e *Engine) admit(ingressPort uint32, payload []byte) error {
	pkt, err := packet.Decode(ingressPort, payload)
	switch {
	case errors.Is(err, packet.ErrUnsupportedProtocol):
		inc(&e.counters.unsupported)
		if e.fallback != nil {
			e.fallback(pkt, payload)
		}
		return err
	case err != nil:
		inc(&e.counters.malformed)
		return err
	}

	identity := pkt.Identity()
	outcome, rec := e.table.Admit(identity, pkt, payload, e.now())
	if outcome == Deduplicated {
		inc(&e.counters.deduplicated)
		return fmt.Errorf("%w: %s", ErrDeduplicated, identity)
	}
	inc(&e.counters.admitted)

	err = e.transport.Send(&Request{
		Identity: identity,
		Protocol: pkt.Protocol,
		Packet:   pkt,
	})
	if err != nil {
		// Not sent means no reply will ever come. Do not leave it pending.
		e.table.Release(rec)
		inc(&e.counters.sendFailures)
		return fmt.Errorf("%w: %s: %s", ErrSendFailure, identity, err)
	}

	logger.Debug().Println(pkgName, "requested", pkt)
	return nil
}

func (e *Engine) logResult(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrDeduplicated),
		errors.Is(err, ErrLateReply),
		errors.Is(err, packet.ErrUnsupportedProtocol):
		logger.Debug().Println(pkgName, err)
	case errors.Is(err, packet.ErrMalformedPacket),
		errors.Is(err, ErrReplyFailed):
		logger.Warning().Println(pkgName, err)
	default:
		logger.Error().Println(pkgName, err)
	}
}

// Collector exports engine counters to prometheus
func (e *Engine) Collector() prometheus.Collector {
	return engineCollector{e: e}
}

func (e *Engine) Stats() Stats {
	var lastSweep time.Time
	if ns := e.lastSweep.Load(); ns != 0 {
		lastSweep = time.Unix(0, ns)
	}

	return Stats{
		Pending:       e.table.Len(),
		Queued:        e.pool.Pending(),
		Admitted:      atomic.LoadUint64(&e.counters.admitted),
		Deduplicated:  atomic.LoadUint64(&e.counters.deduplicated),
		Malformed:     atomic.LoadUint64(&e.counters.malformed),
		Unsupported:   atomic.LoadUint64(&e.counters.unsupported),
		SendFailures:  atomic.LoadUint64(&e.counters.sendFailures),
		Resolved:      atomic.LoadUint64(&e.counters.resolved),
		Failed:        atomic.LoadUint64(&e.counters.failed),
		Late:          atomic.LoadUint64(&e.counters.late),
		Timeouts:      atomic.LoadUint64(&e.counters.timeouts),
		ProgramErrors: atomic.LoadUint64(&e.counters.programErrors),
		LastSweep:     lastSweep,
	}
}
