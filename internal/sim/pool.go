package sim

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of goroutines draining a bounded task queue. It is
// shared by every crowd of a simulation; the unit of work is one group.
type Pool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	quit    chan struct{}
	once    sync.Once
	logger  *log.Logger

	active   atomic.Int64
	total    atomic.Int64
	rejected atomic.Int64
}

// PoolStats is a point-in-time view of the pool counters.
type PoolStats struct {
	Workers  int   `json:"workers"`
	Active   int64 `json:"active"`
	Total    int64 `json:"total"`
	Rejected int64 `json:"rejected"`
}

// NewPool starts workers goroutines behind a queue of the given capacity.
// workers <= 0 selects runtime.NumCPU and queue <= 0 selects eight slots per
// worker.
func NewPool(workers, queue int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 8
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), queue),
		quit:    make(chan struct{}),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(id, task)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(id int, task func()) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.total.Add(1)
		if r := recover(); r != nil {
			p.logger.Printf("pool: worker %d recovered from panic: %v", id, r)
		}
	}()
	task()
}

// TrySubmit queues task without blocking. It returns false when the queue is
// full or the pool is closed; the task is then never run.
func (p *Pool) TrySubmit(task func()) bool {
	select {
	case <-p.quit:
		p.rejected.Add(1)
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:  p.workers,
		Active:   p.active.Load(),
		Total:    p.total.Load(),
		Rejected: p.rejected.Load(),
	}
}

// Close stops the workers after their current task. Queued tasks are
// dropped. Close is safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
