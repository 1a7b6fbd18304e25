package proxy

import (
	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/scheduler"
	"github.com/gogpu/cc/swappromise"
)

// SingleThreadProxy runs the main side and the impl side of a compositor
// on one task runner. Commits replace the active tree directly; there is
// no pending tree and no activation.
//
// Every method must be called on the runner.
type SingleThreadProxy struct {
	host  *layer.LayerTreeHost
	hi    *impl.LayerTreeHostImpl
	sched *scheduler.Scheduler

	commitRequested bool
	inMainFrame     bool
	deferCommits    bool
	deferredFrame   *cc.BeginFrameArgs

	commitAwaitingDraw bool
	stopped            bool
}

// NewSingleThread attaches a single-threaded proxy to host.
func NewSingleThread(host *layer.LayerTreeHost, runner taskrunner.TaskRunner, source scheduler.BeginFrameSource) *SingleThreadProxy {
	settings := host.Settings()
	p := &SingleThreadProxy{host: host}
	p.hi = impl.NewLayerTreeHostImpl(settings, p, runner)
	p.sched = scheduler.New(scheduler.SettingsFrom(settings), p, defaultSource(settings, source), runner)
	host.SetProxy(p)
	return p
}

// HostImpl returns the impl side.
func (p *SingleThreadProxy) HostImpl() *impl.LayerTreeHostImpl { return p.hi }

// Scheduler returns the scheduler.
func (p *SingleThreadProxy) Scheduler() *scheduler.Scheduler { return p.sched }

// Start implements Proxy.
func (p *SingleThreadProxy) Start() {
	cc.Logger().Info("proxy: started", "threaded", false)
	visible := p.host.Visible()
	p.hi.SetVisible(visible)
	p.sched.SetVisible(visible)
}

// Stop implements Proxy.
func (p *SingleThreadProxy) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.sched.Stop()
	p.hi.Close()
	p.host.BreakSwapPromises(swappromise.CommitFails)
	cc.Logger().Info("proxy: stopped", "threaded", false)
}

// SetNeedsAnimate implements layer.Proxy.
func (p *SingleThreadProxy) SetNeedsAnimate() { p.requestMainFrame() }

// SetNeedsUpdateLayers implements layer.Proxy.
func (p *SingleThreadProxy) SetNeedsUpdateLayers() { p.requestMainFrame() }

// SetNeedsCommit implements layer.Proxy. Requests made during a main
// frame are served by that frame's commit.
func (p *SingleThreadProxy) SetNeedsCommit() {
	p.commitRequested = true
	p.requestMainFrame()
}

func (p *SingleThreadProxy) requestMainFrame() {
	if p.inMainFrame || p.stopped {
		return
	}
	p.sched.SetNeedsBeginMainFrame()
}

// SetNeedsRedrawRect implements layer.Proxy.
func (p *SingleThreadProxy) SetNeedsRedrawRect(r geom.Rect) {
	if p.stopped {
		return
	}
	p.hi.SetNeedsRedrawRect(r)
}

// SetDeferCommits implements layer.Proxy.
func (p *SingleThreadProxy) SetDeferCommits(deferCommits bool) {
	if p.deferCommits == deferCommits {
		return
	}
	p.deferCommits = deferCommits
	cc.Logger().Debug("proxy: defer commits", "defer", deferCommits)
	if !deferCommits && p.deferredFrame != nil {
		args := *p.deferredFrame
		p.deferredFrame = nil
		p.beginMainFrame(args)
	}
}

// SetVisible implements layer.Proxy.
func (p *SingleThreadProxy) SetVisible(visible bool) {
	if p.stopped {
		return
	}
	p.hi.SetVisible(visible)
	p.sched.SetVisible(visible)
	if !visible && p.deferredFrame != nil {
		p.deferredFrame = nil
		p.abortMainFrame(cc.CommitAbortedNotVisible)
	}
}

// CommitRequested implements layer.Proxy.
func (p *SingleThreadProxy) CommitRequested() bool { return p.commitRequested }

// beginMainFrame runs a main frame and either reports it ready to commit
// or aborts it.
func (p *SingleThreadProxy) beginMainFrame(args cc.BeginFrameArgs) {
	if p.deferCommits {
		cc.Logger().Debug("proxy: main frame deferred", "seq", args.SequenceNumber)
		p.deferredFrame = &args
		return
	}
	p.sched.NotifyBeginMainFrameStarted()
	if reason, ok := mainFrameEarlyOut(p.host); ok {
		p.abortMainFrame(reason)
		return
	}

	p.inMainFrame = true
	p.host.WillBeginMainFrame()
	p.host.BeginMainFrame(args)
	updated := p.host.UpdateLayers()
	if !updated && !p.commitRequested {
		p.abortMainFrame(cc.CommitFinishedNoUpdates)
		return
	}
	p.commitRequested = false
	p.host.WillCommit()
	p.sched.NotifyReadyToCommit()
}

func (p *SingleThreadProxy) abortMainFrame(reason cc.CommitEarlyOutReason) {
	p.inMainFrame = false
	p.host.BeginMainFrameAborted(reason)
	p.sched.BeginMainFrameAborted(reason)
}

// WillBeginImplFrame implements scheduler.Client.
func (p *SingleThreadProxy) WillBeginImplFrame(cc.BeginFrameArgs) {}

// ScheduledActionSendBeginMainFrame implements scheduler.Client. The
// main frame runs before the scheduler picks its next action.
func (p *SingleThreadProxy) ScheduledActionSendBeginMainFrame(args cc.BeginFrameArgs) {
	p.beginMainFrame(args)
}

// ScheduledActionCommit implements scheduler.Client.
func (p *SingleThreadProxy) ScheduledActionCommit() {
	p.host.FinishCommitOnImplThread(p.hi)
	p.hi.CommitComplete()
	p.inMainFrame = false
	p.commitAwaitingDraw = true
	p.host.CommitComplete()
}

// ScheduledActionActivateSyncTree implements scheduler.Client.
func (p *SingleThreadProxy) ScheduledActionActivateSyncTree() { p.hi.ActivateSyncTree() }

// ScheduledActionDrawAndSwap implements scheduler.Client.
func (p *SingleThreadProxy) ScheduledActionDrawAndSwap() scheduler.DrawResult {
	result := drawAndSwap(p.hi)
	if result == scheduler.DrawSuccess && p.commitAwaitingDraw {
		p.commitAwaitingDraw = false
		p.host.DidCommitAndDrawFrame()
	}
	return result
}

// ScheduledActionBeginOutputSurfaceCreation implements scheduler.Client.
func (p *SingleThreadProxy) ScheduledActionBeginOutputSurfaceCreation() {
	out, err := p.host.RequestNewOutputSurface()
	if err == nil {
		err = p.hi.InitializeOutputSurface(out)
	}
	if err != nil {
		cc.Logger().Warn("proxy: output surface creation failed", "err", err)
		p.sched.DidFailToCreateOutputSurface()
		return
	}
	p.sched.SetMaxPendingSwaps(p.hi.MaxFramesPending())
	p.commitRequested = true
	p.host.DidInitializeOutputSurface()
	p.sched.DidCreateAndInitializeOutputSurface()
}

// ScheduledActionPrepareTiles implements scheduler.Client.
func (p *SingleThreadProxy) ScheduledActionPrepareTiles() { p.hi.PrepareTiles() }

// DidFinishImplFrame implements scheduler.Client.
func (p *SingleThreadProxy) DidFinishImplFrame() {}

// NotifyReadyToActivate implements impl.Client.
func (p *SingleThreadProxy) NotifyReadyToActivate() { p.sched.NotifyReadyToActivate() }

// NotifyReadyToDraw implements impl.Client.
func (p *SingleThreadProxy) NotifyReadyToDraw() {}

// SetNeedsRedrawOnImplThread implements impl.Client.
func (p *SingleThreadProxy) SetNeedsRedrawOnImplThread() { p.sched.SetNeedsRedraw() }

// SetNeedsPrepareTilesOnImplThread implements impl.Client.
func (p *SingleThreadProxy) SetNeedsPrepareTilesOnImplThread() { p.sched.SetNeedsPrepareTiles() }

// DidLoseOutputSurfaceOnImplThread implements impl.Client.
func (p *SingleThreadProxy) DidLoseOutputSurfaceOnImplThread() {
	p.host.DidLoseOutputSurface()
	p.sched.DidLoseOutputSurface()
}

// DidSwapBuffersCompleteOnImplThread implements impl.Client.
func (p *SingleThreadProxy) DidSwapBuffersCompleteOnImplThread() {
	p.sched.DidSwapBuffersComplete()
	p.host.DidCompleteSwapBuffers()
}

// DidActivateSyncTree implements impl.Client.
func (p *SingleThreadProxy) DidActivateSyncTree() {}
