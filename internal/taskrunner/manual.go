package taskrunner

import (
	"container/heap"
	"sync"
	"time"
)

// Manual is a TaskRunner driven by its owner. Tasks run on the goroutine
// that calls RunPending or RunUntilIdle, against a virtual clock advanced
// with Advance. It is meant for tests.
type Manual struct {
	mu      sync.Mutex
	queue   []func()
	timers  delayedHeap
	seq     uint64
	now     time.Time
	running bool
	stopped bool
}

// NewManual returns an idle manual runner.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

// PostTask implements TaskRunner.
func (m *Manual) PostTask(fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	m.queue = append(m.queue, fn)
	return nil
}

// PostDelayedTask implements TaskRunner. The delay is measured on the
// virtual clock.
func (m *Manual) PostDelayedTask(delay time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	m.seq++
	heap.Push(&m.timers, delayed{when: m.now.Add(delay), seq: m.seq, fn: fn})
	return nil
}

// BelongsToCurrentThread implements TaskRunner. A manual runner has no
// thread of its own; every caller is considered to be on it.
func (m *Manual) BelongsToCurrentThread() bool {
	return true
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the virtual clock forward, making delayed tasks due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// RunPending runs the tasks that are due now, including tasks they post,
// and returns how many ran.
func (m *Manual) RunPending() int {
	n := 0
	for {
		fn := m.next()
		if fn == nil {
			return n
		}
		fn()
		n++
	}
}

// RunUntilIdle runs due tasks, then advances the clock to each remaining
// delayed task in turn, until nothing is queued. limit bounds the number
// of tasks so that self-reposting tasks terminate; it returns false if the
// limit was hit.
func (m *Manual) RunUntilIdle(limit int) bool {
	for n := 0; n < limit; {
		if fn := m.next(); fn != nil {
			fn()
			n++
			continue
		}
		m.mu.Lock()
		if len(m.timers) == 0 {
			m.mu.Unlock()
			return true
		}
		m.now = m.timers[0].when
		m.mu.Unlock()
	}
	return false
}

// HasPendingTasks reports whether any task is queued, due or not.
func (m *Manual) HasPendingTasks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0 || len(m.timers) > 0
}

// Stop drops queued tasks and rejects new ones.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.queue = nil
	m.timers = nil
}

func (m *Manual) next() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.timers) > 0 && !m.timers[0].when.After(m.now) {
		t := heap.Pop(&m.timers).(delayed)
		m.queue = append(m.queue, t.fn)
	}
	if len(m.queue) == 0 {
		return nil
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return fn
}
