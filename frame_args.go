package cc

import "time"

// BeginFrameArgs describe one frame opportunity.
type BeginFrameArgs struct {
	// SequenceNumber increases by one per BeginFrame of a source.
	SequenceNumber uint64

	// FrameTime is the time the frame is expected to be presented.
	FrameTime time.Time

	// Deadline is the latest time a draw for this frame should start.
	Deadline time.Time

	Interval time.Duration
}

// IsValid reports whether the args came from a BeginFrame source.
func (a BeginFrameArgs) IsValid() bool {
	return a.SequenceNumber > 0
}
