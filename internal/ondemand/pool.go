package ondemand

import (
	"runtime/debug"
	"sync"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
)

// pool is a fixed set of workers consuming an unbounded FIFO task queue.
// Submit never blocks on a busy pool, so the packet receive path is never stalled.
type pool struct {
	sync.Mutex
	cond    *sync.Cond
	queue   []func()
	size    int
	stopped bool
	wg      sync.WaitGroup
}

func newPool(size int) *pool {
	p := &pool{size: size}
	p.cond = sync.NewCond(&p.Mutex)
	return p
}

func (p *pool) start() {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.worker()
	}
}

func (p *pool) Submit(task func()) error {
	p.Lock()
	defer p.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()

	return nil
}

// Pending returns count of queued, not yet started tasks
func (p *pool) Pending() int {
	p.Lock()
	defer p.Unlock()
	return len(p.queue)
}

// stop rejects new tasks, lets workers drain the queue and waits for them.
func (p *pool) stop() {
	p.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.Unlock()

	p.wg.Wait()
}

func (p *pool) worker() {
	defer p.wg.Done()

	for {
		p.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// stopped and drained
			p.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.Unlock()

		p.run(task)
	}
}

func (p *pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Println(pkgName, "task panic:", r, string(debug.Stack()))
		}
	}()

	task()
}
