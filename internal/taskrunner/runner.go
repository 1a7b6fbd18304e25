// Package taskrunner provides sequenced task execution for the two sides
// of the compositor. A Runner executes posted tasks one at a time, in post
// order, on a goroutine it owns; a Manual runner executes them on the
// goroutine that drains it, for deterministic tests.
package taskrunner

import (
	"container/heap"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/cc"
)

// ErrStopped is returned when posting to a stopped runner.
var ErrStopped = errors.New("taskrunner: stopped")

// TaskRunner runs tasks in sequence.
type TaskRunner interface {
	// PostTask queues fn to run after every previously posted task.
	PostTask(fn func()) error

	// PostDelayedTask queues fn to run no earlier than delay from now.
	PostDelayedTask(delay time.Duration, fn func()) error

	// BelongsToCurrentThread reports whether the caller is running inside
	// one of this runner's tasks.
	BelongsToCurrentThread() bool
}

type delayed struct {
	when time.Time
	seq  uint64
	fn   func()
}

type delayedHeap []delayed

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any)   { *h = append(*h, x.(delayed)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Runner owns one goroutine that executes posted tasks.
//
// A task that panics is logged and does not stop the runner.
type Runner struct {
	name string

	mu      sync.Mutex
	wake    chan struct{}
	queue   []func()
	timers  delayedHeap
	seq     uint64
	stopped bool

	done chan struct{}
	gid  atomic.Uint64
}

// New starts a runner. name appears in log messages.
func New(name string) *Runner {
	r := &Runner{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

// PostTask implements TaskRunner.
func (r *Runner) PostTask(fn func()) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	r.signal()
	return nil
}

// PostDelayedTask implements TaskRunner.
func (r *Runner) PostDelayedTask(delay time.Duration, fn func()) error {
	if delay <= 0 {
		return r.PostTask(fn)
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.seq++
	heap.Push(&r.timers, delayed{when: time.Now().Add(delay), seq: r.seq, fn: fn})
	r.mu.Unlock()
	r.signal()
	return nil
}

// BelongsToCurrentThread implements TaskRunner.
func (r *Runner) BelongsToCurrentThread() bool {
	return r.gid.Load() == goroutineID()
}

// PostAndWait runs fn on the runner and blocks until it returns. Called
// from a task of the same runner it runs fn inline.
func (r *Runner) PostAndWait(fn func()) error {
	if r.BelongsToCurrentThread() {
		fn()
		return nil
	}
	done := make(chan struct{})
	if err := r.PostTask(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// PostAndWait runs fn on r and waits for it. A caller already on r, and
// every caller of a Manual runner, runs fn inline.
func PostAndWait(r TaskRunner, fn func()) error {
	if r.BelongsToCurrentThread() {
		fn()
		return nil
	}
	if w, ok := r.(interface{ PostAndWait(func()) error }); ok {
		return w.PostAndWait(fn)
	}
	done := make(chan struct{})
	if err := r.PostTask(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// Stop stops the runner after the task in progress. Queued tasks are
// dropped. Stop blocks until the goroutine exits unless it is called
// from a task of this runner.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.queue = nil
	r.timers = nil
	r.mu.Unlock()
	r.signal()
	if !r.BelongsToCurrentThread() {
		<-r.done
	}
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) loop() {
	defer close(r.done)
	r.gid.Store(goroutineID())
	for {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		now := time.Now()
		for len(r.timers) > 0 && !r.timers[0].when.After(now) {
			t := heap.Pop(&r.timers).(delayed)
			r.queue = append(r.queue, t.fn)
		}
		var next func()
		if len(r.queue) > 0 {
			next = r.queue[0]
			r.queue[0] = nil
			r.queue = r.queue[1:]
		}
		var wait <-chan time.Time
		if next == nil && len(r.timers) > 0 {
			wait = time.After(r.timers[0].when.Sub(now))
		}
		r.mu.Unlock()

		if next != nil {
			r.safeRun(next)
			continue
		}
		select {
		case <-r.wake:
		case <-wait:
		}
	}
}

func (r *Runner) safeRun(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			cc.Logger().Error("taskrunner: task panicked", "runner", r.name, "panic", p)
		}
	}()
	fn()
}

// goroutineID parses the current goroutine id from the stack header
// "goroutine NNN [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
