package scheduler

import (
	"slices"
	"sync"
	"time"

	"github.com/gogpu/cc"
)

// BeginFrameObserver receives BeginFrames.
type BeginFrameObserver interface {
	OnBeginFrame(args cc.BeginFrameArgs)
}

// BeginFrameSource produces BeginFrames for its observers. A source only
// ticks while it has observers.
type BeginFrameSource interface {
	AddObserver(o BeginFrameObserver)
	RemoveObserver(o BeginFrameObserver)
}

// observerList is the observer bookkeeping shared by the sources.
type observerList struct {
	mu        sync.Mutex
	observers []BeginFrameObserver
}

// add returns true when o is the first observer.
func (l *observerList) add(o BeginFrameObserver) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.Contains(l.observers, o) {
		return false
	}
	l.observers = append(l.observers, o)
	return len(l.observers) == 1
}

// remove returns true when o was the last observer.
func (l *observerList) remove(o BeginFrameObserver) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.Index(l.observers, o)
	if i < 0 {
		return false
	}
	l.observers = slices.Delete(l.observers, i, i+1)
	return len(l.observers) == 0
}

func (l *observerList) snapshot() []BeginFrameObserver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.observers)
}

func (l *observerList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observers)
}

// ManualBeginFrameSource ticks when told to. It is meant for tests and
// for embedders that receive vsync from elsewhere.
type ManualBeginFrameSource struct {
	observerList

	interval time.Duration
	seqMu    sync.Mutex
	seq      uint64
}

// NewManualBeginFrameSource returns a source whose frames are interval
// apart. A zero interval uses the default frame interval.
func NewManualBeginFrameSource(interval time.Duration) *ManualBeginFrameSource {
	if interval <= 0 {
		interval = time.Duration(cc.DefaultBeginFrameInterval)
	}
	return &ManualBeginFrameSource{interval: interval}
}

// AddObserver implements BeginFrameSource.
func (m *ManualBeginFrameSource) AddObserver(o BeginFrameObserver) { m.add(o) }

// RemoveObserver implements BeginFrameSource.
func (m *ManualBeginFrameSource) RemoveObserver(o BeginFrameObserver) { m.remove(o) }

// Observed reports whether any observer wants BeginFrames.
func (m *ManualBeginFrameSource) Observed() bool { return m.len() > 0 }

// Tick sends a BeginFrame for frameTime to the observers and reports
// whether there were any. Ticks without observers are dropped.
func (m *ManualBeginFrameSource) Tick(frameTime time.Time) bool {
	observers := m.snapshot()
	if len(observers) == 0 {
		return false
	}
	m.seqMu.Lock()
	m.seq++
	args := cc.BeginFrameArgs{
		SequenceNumber: m.seq,
		FrameTime:      frameTime,
		Deadline:       frameTime.Add(m.interval / 2),
		Interval:       m.interval,
	}
	m.seqMu.Unlock()
	for _, o := range observers {
		o.OnBeginFrame(args)
	}
	return true
}

// SyntheticBeginFrameSource ticks from a timer at a fixed interval while
// it is observed.
type SyntheticBeginFrameSource struct {
	observerList

	interval time.Duration

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	seq    uint64
}

// NewSyntheticBeginFrameSource returns a stopped source ticking every
// interval once observed.
func NewSyntheticBeginFrameSource(interval time.Duration) *SyntheticBeginFrameSource {
	if interval <= 0 {
		interval = time.Duration(cc.DefaultBeginFrameInterval)
	}
	return &SyntheticBeginFrameSource{interval: interval}
}

// AddObserver implements BeginFrameSource. The first observer starts the
// ticker.
func (s *SyntheticBeginFrameSource) AddObserver(o BeginFrameObserver) {
	if s.add(o) {
		s.start()
	}
}

// RemoveObserver implements BeginFrameSource. Removing the last observer
// stops the ticker.
func (s *SyntheticBeginFrameSource) RemoveObserver(o BeginFrameObserver) {
	if s.remove(o) {
		s.Stop()
	}
}

func (s *SyntheticBeginFrameSource) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	go s.tickLoop(s.ticker, s.stop)
}

// Stop stops the ticker. Observers stay registered; adding one restarts
// it.
func (s *SyntheticBeginFrameSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
}

// tickLoop is the ticker's main loop.
func (s *SyntheticBeginFrameSource) tickLoop(ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			s.seq++
			args := cc.BeginFrameArgs{
				SequenceNumber: s.seq,
				FrameTime:      now,
				Deadline:       now.Add(s.interval / 2),
				Interval:       s.interval,
			}
			s.mu.Unlock()
			for _, o := range s.snapshot() {
				o.OnBeginFrame(args)
			}
		}
	}
}
