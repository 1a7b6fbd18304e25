// Package swappromise tracks what happened to a commit's frame.
//
// A SwapPromise is queued by the producer against the next commit. It then
// travels with the commit into the pending tree and, on activation, into
// the active tree. Exactly one terminal outcome is reported:
//
//   - DidNotSwap(CommitFails or CommitNoUpdate), without DidActivate, when
//     the commit never happens;
//   - DidActivate then DidNotSwap(SwapFails) when the tree activates but no
//     frame is swapped;
//   - DidActivate then DidSwap when a frame is swapped.
//
// Dispose is called once after the terminal outcome on every path.
package swappromise

import (
	"github.com/gogpu/cc/quad"
)

// DidNotSwapReason tells why a promise did not swap.
type DidNotSwapReason int

// Reasons reported to DidNotSwap.
const (
	// SwapFails: the commit activated but no frame was swapped, or a pinned
	// promise was overtaken by a newer activation.
	SwapFails DidNotSwapReason = iota
	// CommitFails: the commit was aborted (invisible, output surface lost,
	// deferred commits).
	CommitFails
	// CommitNoUpdate: the main frame produced no change.
	CommitNoUpdate
)

// String returns the reason name.
func (r DidNotSwapReason) String() string {
	switch r {
	case SwapFails:
		return "SWAP_FAILS"
	case CommitFails:
		return "COMMIT_FAILS"
	case CommitNoUpdate:
		return "COMMIT_NO_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// SwapPromise is a one-shot completion token for a commit.
type SwapPromise interface {
	// DidActivate is called when the tree carrying the promise activates.
	DidActivate()

	// DidSwap is called when a frame drawn from the promise's tree is
	// submitted to the output surface.
	DidSwap(metadata *quad.CompositorFrameMetadata)

	// DidNotSwap is called when the promise will never swap.
	DidNotSwap(reason DidNotSwapReason)

	// Dispose is called exactly once, after the terminal outcome.
	Dispose()
}

// WillSwapper is implemented by promises that annotate the frame metadata
// before the frame is submitted.
type WillSwapper interface {
	WillSwap(metadata *quad.CompositorFrameMetadata)
}

// LatencyPromise records its trace id in the metadata of the frame that
// swaps it. It has no other behavior.
type LatencyPromise struct {
	TraceID int64
}

// WillSwap implements WillSwapper.
func (p *LatencyPromise) WillSwap(metadata *quad.CompositorFrameMetadata) {
	metadata.LatencyInfo = append(metadata.LatencyInfo, p.TraceID)
}

func (*LatencyPromise) DidActivate()                          {}
func (*LatencyPromise) DidSwap(*quad.CompositorFrameMetadata) {}
func (*LatencyPromise) DidNotSwap(DidNotSwapReason)           {}
func (*LatencyPromise) Dispose()                              {}
