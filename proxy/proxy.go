// Package proxy connects a LayerTreeHost to its LayerTreeHostImpl and
// the scheduler that drives both.
//
// SingleThreadProxy runs the two sides on one task runner and commits
// straight into the active tree. ThreadProxy runs the main side and the
// impl side on separate runners; during a commit the main goroutine is
// blocked while the impl goroutine copies the layer tree.
package proxy

import (
	"time"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/scheduler"
)

// Proxy is implemented by SingleThreadProxy and ThreadProxy.
type Proxy interface {
	layer.Proxy

	// Start shows the compositor to the scheduler. Nothing is drawn
	// before Start.
	Start()

	// Stop ends scheduling and releases the impl side. Queued swap
	// promises of the host fail with CommitFails.
	Stop()

	HostImpl() *impl.LayerTreeHostImpl
	Scheduler() *scheduler.Scheduler
}

var (
	_ Proxy = (*SingleThreadProxy)(nil)
	_ Proxy = (*ThreadProxy)(nil)
)

// New attaches the proxy selected by the Threaded setting of host. A
// single-threaded proxy runs on mainRunner and ignores implRunner. A nil
// source ticks at the configured BeginFrame interval.
func New(host *layer.LayerTreeHost, mainRunner, implRunner taskrunner.TaskRunner, source scheduler.BeginFrameSource) Proxy {
	if host.Settings().Threaded {
		return NewThreaded(host, mainRunner, implRunner, source)
	}
	return NewSingleThread(host, mainRunner, source)
}

func defaultSource(settings cc.LayerTreeSettings, source scheduler.BeginFrameSource) scheduler.BeginFrameSource {
	if source != nil {
		return source
	}
	return scheduler.NewSyntheticBeginFrameSource(time.Duration(settings.BeginFrameInterval))
}

// mainFrameEarlyOut returns why a main frame should end before updating
// layers, if it should.
func mainFrameEarlyOut(host *layer.LayerTreeHost) (cc.CommitEarlyOutReason, bool) {
	switch {
	case !host.Visible():
		return cc.CommitAbortedNotVisible, true
	case host.OutputSurfaceLost():
		return cc.CommitAbortedOutputSurfaceLost, true
	}
	return 0, false
}

// drawAndSwap draws the active tree of hi and swaps the frame. Frames
// that cannot be drawn or have no damage are not swapped; the promises of
// the active tree then fail with SwapFails.
func drawAndSwap(hi *impl.LayerTreeHostImpl) scheduler.DrawResult {
	var frame impl.FrameData
	switch hi.PrepareToDraw(&frame) {
	case impl.DrawAbortedContextLost:
		return scheduler.DrawAbortedContextLost
	case impl.DrawAbortedCantDraw:
		hi.SwapBuffers(&frame)
		return scheduler.DrawAbortedCantDraw
	}
	hi.DrawLayers(&frame)
	if frame.HasNoDamage {
		hi.SwapBuffers(&frame)
		return scheduler.DrawAbortedNoDamage
	}
	if !hi.SwapBuffers(&frame) {
		return scheduler.DrawAbortedCantDraw
	}
	return scheduler.DrawSuccess
}
