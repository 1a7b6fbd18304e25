package swappromise

import (
	"github.com/gogpu/cc/quad"
)

type entry struct {
	promise   SwapPromise
	activated bool
}

// List holds queued promises while they travel from the producer to the
// active tree. A List is owned by one thread at a time and is not safe for
// concurrent use; ownership moves with the commit.
type List struct {
	entries []*entry
}

// Queue appends p.
func (l *List) Queue(p SwapPromise) {
	l.entries = append(l.entries, &entry{promise: p})
}

// Len returns the number of queued promises.
func (l *List) Len() int {
	return len(l.entries)
}

// TakeFrom moves every promise of other to the end of l, keeping their
// activation state.
func (l *List) TakeFrom(other *List) {
	if other == nil || other == l {
		return
	}
	l.entries = append(l.entries, other.entries...)
	other.entries = nil
}

// Activate calls DidActivate on every promise that has not activated yet.
func (l *List) Activate() {
	for _, e := range l.entries {
		if !e.activated {
			e.activated = true
			e.promise.DidActivate()
		}
	}
}

// WillSwap lets promises annotate the metadata of the frame about to swap.
func (l *List) WillSwap(metadata *quad.CompositorFrameMetadata) {
	for _, e := range l.entries {
		if w, ok := e.promise.(WillSwapper); ok {
			w.WillSwap(metadata)
		}
	}
}

// Finish reports a successful swap to every promise and empties the list.
func (l *List) Finish(metadata *quad.CompositorFrameMetadata) {
	entries := l.entries
	l.entries = nil
	for _, e := range entries {
		e.promise.DidSwap(metadata)
		e.promise.Dispose()
	}
}

// Break reports reason to every promise and empties the list.
func (l *List) Break(reason DidNotSwapReason) {
	entries := l.entries
	l.entries = nil
	for _, e := range entries {
		e.promise.DidNotSwap(reason)
		e.promise.Dispose()
	}
}
