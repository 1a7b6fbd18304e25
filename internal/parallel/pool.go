// Package parallel provides the goroutine and tile bookkeeping used by
// raster scheduling: a work-stealing worker pool, a fixed-size tile grid
// and a lock-free set of tiles.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs raster tasks on a fixed set of goroutines.
//
// Each worker owns a queue. A worker whose queue is empty steals from the
// others before blocking, which keeps slow tiles from serializing a batch.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// inflight counts submitted tasks that have not finished.
	inflight atomic.Int64
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers <= 0, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(8, workers*4)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			p.run(task)
			continue
		default:
		}

		if task := p.steal(id); task != nil {
			p.run(task)
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task func()) {
	defer p.inflight.Add(-1)
	task()
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case task := <-queue:
			p.run(task)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case task := <-p.queues[i]:
			return task
		default:
		}
	}
	return nil
}

// Submit queues one task on the least loaded worker. It reports false if
// the pool is closed; the task is then not run.
func (p *WorkerPool) Submit(task func()) bool {
	if task == nil || !p.running.Load() {
		return false
	}
	best := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[best]) {
			best = i
		}
	}
	p.inflight.Add(1)
	select {
	case p.queues[best] <- task:
		return true
	case <-p.done:
		p.inflight.Add(-1)
		return false
	}
}

// ExecuteAll runs every task and waits for all of them. Tasks are spread
// round-robin. On a closed pool it returns immediately.
func (p *WorkerPool) ExecuteAll(tasks []func()) {
	if len(tasks) == 0 || !p.running.Load() {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		p.inflight.Add(1)
		wrapped := func() {
			defer wg.Done()
			task()
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			p.inflight.Add(-1)
			wg.Done()
		}
	}
	wg.Wait()
}

// Close stops accepting tasks, runs what is queued and stops the workers.
// Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts tasks.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// InFlight returns the number of submitted tasks not yet finished.
func (p *WorkerPool) InFlight() int {
	return int(p.inflight.Load())
}
