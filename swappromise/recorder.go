package swappromise

import (
	"fmt"
	"sync"

	"github.com/gogpu/cc/quad"
)

// Recorder is a SwapPromise that records the calls it receives. It is
// used by tests and diagnostics and is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	activateCount   int
	swapCount       int
	didNotSwapCount int
	disposeCount    int
	reason          DidNotSwapReason
	metadata        *quad.CompositorFrameMetadata
	calls           []string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// DidActivate implements SwapPromise.
func (r *Recorder) DidActivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activateCount++
	r.calls = append(r.calls, "DidActivate")
}

// DidSwap implements SwapPromise.
func (r *Recorder) DidSwap(metadata *quad.CompositorFrameMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapCount++
	r.metadata = metadata
	r.calls = append(r.calls, "DidSwap")
}

// DidNotSwap implements SwapPromise.
func (r *Recorder) DidNotSwap(reason DidNotSwapReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.didNotSwapCount++
	r.reason = reason
	r.calls = append(r.calls, "DidNotSwap("+reason.String()+")")
}

// Dispose implements SwapPromise.
func (r *Recorder) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeCount++
	r.calls = append(r.calls, "Dispose")
}

// Calls returns the calls received so far, in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Activated reports whether DidActivate was called.
func (r *Recorder) Activated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateCount > 0
}

// Swapped reports whether DidSwap was called.
func (r *Recorder) Swapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swapCount > 0
}

// DidNotSwapReason returns the reason passed to DidNotSwap and whether it
// was called.
func (r *Recorder) DidNotSwapReason() (DidNotSwapReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason, r.didNotSwapCount > 0
}

// Disposed reports whether Dispose was called.
func (r *Recorder) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposeCount > 0
}

// Metadata returns the metadata passed to DidSwap.
func (r *Recorder) Metadata() *quad.CompositorFrameMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata
}

// Verify checks the one-shot contract: at most one activation, exactly
// one terminal outcome, then exactly one Dispose, and no swap or swap
// failure without activation.
func (r *Recorder) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.activateCount > 1:
		return fmt.Errorf("swappromise: DidActivate called %d times", r.activateCount)
	case r.swapCount+r.didNotSwapCount != 1:
		return fmt.Errorf("swappromise: %d terminal outcomes: %v", r.swapCount+r.didNotSwapCount, r.calls)
	case r.swapCount == 1 && r.activateCount == 0:
		return fmt.Errorf("swappromise: swapped without activation: %v", r.calls)
	case r.didNotSwapCount == 1 && r.reason == SwapFails && r.activateCount == 0:
		return fmt.Errorf("swappromise: swap failed without activation: %v", r.calls)
	case r.disposeCount != 1:
		return fmt.Errorf("swappromise: Dispose called %d times", r.disposeCount)
	case r.calls[len(r.calls)-1] != "Dispose":
		return fmt.Errorf("swappromise: Dispose is not the last call: %v", r.calls)
	}
	return nil
}
