package swappromise

import "sync"

// Monitor observes requests that will eventually produce a swap, so that
// input latency can be attributed to the frame that reflects it.
type Monitor interface {
	OnSetNeedsCommitOnMain()
	OnSetNeedsRedrawOnImpl()
}

// MonitorSet fans notifications out to registered monitors.
// It is safe for concurrent use.
type MonitorSet struct {
	mu       sync.Mutex
	monitors []Monitor
}

// Add registers m.
func (s *MonitorSet) Add(m Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors = append(s.monitors, m)
}

// Remove unregisters m.
func (s *MonitorSet) Remove(m Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.monitors {
		if x == m {
			s.monitors = append(s.monitors[:i], s.monitors[i+1:]...)
			return
		}
	}
}

// NotifySetNeedsCommit calls OnSetNeedsCommitOnMain on every monitor.
func (s *MonitorSet) NotifySetNeedsCommit() {
	for _, m := range s.snapshot() {
		m.OnSetNeedsCommitOnMain()
	}
}

// NotifySetNeedsRedraw calls OnSetNeedsRedrawOnImpl on every monitor.
func (s *MonitorSet) NotifySetNeedsRedraw() {
	for _, m := range s.snapshot() {
		m.OnSetNeedsRedrawOnImpl()
	}
}

func (s *MonitorSet) snapshot() []Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Monitor(nil), s.monitors...)
}
