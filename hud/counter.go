// Package hud implements the compositor heads-up display: a frame rate
// counter fed by the impl thread and a painter that renders it into a
// bitmap for the HUD layer.
package hud

import (
	"sync"
	"time"
)

// DefaultHistory is the number of frame intervals a counter keeps.
const DefaultHistory = 120

// Intervals longer than this are pauses, not frames, and are ignored by
// AverageFPS.
const maxFrameInterval = time.Second

// FrameRateCounter records swap timestamps in a ring buffer.
//
// Thread safety: FrameRateCounter is safe for concurrent use.
type FrameRateCounter struct {
	mu       sync.Mutex
	expected time.Duration
	ring     []time.Duration
	next     int
	filled   bool
	last     time.Time
	frames   int
	dropped  int
}

// NewFrameRateCounter returns a counter for the given begin frame
// interval. history <= 0 selects DefaultHistory.
func NewFrameRateCounter(expected time.Duration, history int) *FrameRateCounter {
	if history <= 0 {
		history = DefaultHistory
	}
	return &FrameRateCounter{expected: expected, ring: make([]time.Duration, history)}
}

// SaveTimeStamp records a frame presented at t. A frame that arrives more
// than one and a half intervals after the previous one counts as dropped.
func (c *FrameRateCounter) SaveTimeStamp(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if c.last.IsZero() {
		c.last = t
		return
	}
	d := t.Sub(c.last)
	c.last = t
	if d <= 0 {
		return
	}
	c.ring[c.next] = d
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.filled = true
	}
	if c.expected > 0 && d > c.expected*3/2 && d <= maxFrameInterval {
		c.dropped++
	}
}

// FrameCount returns the number of frames recorded.
func (c *FrameRateCounter) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// DroppedFrameCount returns the number of late frames.
func (c *FrameRateCounter) DroppedFrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// AverageFPS returns the mean frame rate over the recorded history, or 0
// with fewer than two frames.
func (c *FrameRateCounter) AverageFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	if c.filled {
		n = len(c.ring)
	}
	var total time.Duration
	count := 0
	for _, d := range c.ring[:n] {
		if d <= 0 || d > maxFrameInterval {
			continue
		}
		total += d
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(count) / total.Seconds()
}

// Intervals returns the recorded frame intervals, oldest first.
func (c *FrameRateCounter) Intervals() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.filled {
		return append([]time.Duration(nil), c.ring[:c.next]...)
	}
	out := make([]time.Duration, 0, len(c.ring))
	out = append(out, c.ring[c.next:]...)
	return append(out, c.ring[:c.next]...)
}
