package proxy

import (
	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/scheduler"
	"github.com/gogpu/cc/surface"
	"github.com/gogpu/cc/swappromise"
)

// ThreadProxy runs the main side of a compositor on one task runner and
// the impl side on another. Commits go to a pending tree that activates
// once it is ready; the active tree keeps drawing meanwhile.
//
// The layer.Proxy methods, Start and Stop must be called on the main
// runner.
type ThreadProxy struct {
	settings   cc.LayerTreeSettings
	host       *layer.LayerTreeHost
	hi         *impl.LayerTreeHostImpl
	sched      *scheduler.Scheduler
	mainRunner taskrunner.TaskRunner
	implRunner taskrunner.TaskRunner

	// Main side.
	commitRequested bool
	inMainFrame     bool
	deferCommits    bool
	deferredFrame   *cc.BeginFrameArgs
	stopped         bool

	// Impl side. commitDone releases the main goroutine blocked in a
	// commit.
	commitDone         chan struct{}
	commitAwaitingDraw bool
	implStopped        bool
}

// NewThreaded attaches a threaded proxy to host.
func NewThreaded(host *layer.LayerTreeHost, mainRunner, implRunner taskrunner.TaskRunner, source scheduler.BeginFrameSource) *ThreadProxy {
	settings := host.Settings()
	p := &ThreadProxy{
		settings:   settings,
		host:       host,
		mainRunner: mainRunner,
		implRunner: implRunner,
	}
	p.hi = impl.NewLayerTreeHostImpl(settings, p, implRunner)
	p.sched = scheduler.New(scheduler.SettingsFrom(settings), p, defaultSource(settings, source), implRunner)
	host.SetProxy(p)
	return p
}

// HostImpl returns the impl side. It must only be used on the impl
// runner.
func (p *ThreadProxy) HostImpl() *impl.LayerTreeHostImpl { return p.hi }

// Scheduler returns the scheduler. It must only be used on the impl
// runner.
func (p *ThreadProxy) Scheduler() *scheduler.Scheduler { return p.sched }

func (p *ThreadProxy) postImpl(fn func()) {
	if err := p.implRunner.PostTask(fn); err != nil {
		cc.Logger().Debug("proxy: impl task dropped", "err", err)
	}
}

func (p *ThreadProxy) postMain(fn func()) {
	if err := p.mainRunner.PostTask(fn); err != nil {
		cc.Logger().Debug("proxy: main task dropped", "err", err)
	}
}

// Start implements Proxy.
func (p *ThreadProxy) Start() {
	cc.Logger().Info("proxy: started", "threaded", true, "wait_for_activation", p.settings.WaitForActivation)
	visible := p.host.Visible()
	p.postImpl(func() {
		p.hi.SetVisible(visible)
		p.sched.SetVisible(visible)
	})
}

// Stop implements Proxy. It waits for the impl side to shut down.
func (p *ThreadProxy) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	err := taskrunner.PostAndWait(p.implRunner, func() {
		p.implStopped = true
		p.sched.Stop()
		p.hi.Close()
		p.releaseCommit()
	})
	if err != nil {
		cc.Logger().Warn("proxy: impl side already stopped", "err", err)
	}
	p.host.BreakSwapPromises(swappromise.CommitFails)
	cc.Logger().Info("proxy: stopped", "threaded", true)
}

// SetNeedsAnimate implements layer.Proxy.
func (p *ThreadProxy) SetNeedsAnimate() { p.requestMainFrame() }

// SetNeedsUpdateLayers implements layer.Proxy.
func (p *ThreadProxy) SetNeedsUpdateLayers() { p.requestMainFrame() }

// SetNeedsCommit implements layer.Proxy. Requests made during a main
// frame are served by that frame's commit.
func (p *ThreadProxy) SetNeedsCommit() {
	p.commitRequested = true
	p.requestMainFrame()
}

func (p *ThreadProxy) requestMainFrame() {
	if p.inMainFrame || p.stopped {
		return
	}
	p.postImpl(p.sched.SetNeedsBeginMainFrame)
}

// SetNeedsRedrawRect implements layer.Proxy.
func (p *ThreadProxy) SetNeedsRedrawRect(r geom.Rect) {
	if p.stopped {
		return
	}
	p.postImpl(func() { p.hi.SetNeedsRedrawRect(r) })
}

// SetDeferCommits implements layer.Proxy. A main frame that arrived
// while deferred runs once commits resume.
func (p *ThreadProxy) SetDeferCommits(deferCommits bool) {
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
func (p *ThreadProxy) SetVisible(visible bool) {
	if p.stopped {
		return
	}
	p.postImpl(func() {
		p.hi.SetVisible(visible)
		p.sched.SetVisible(visible)
	})
	if !visible && p.deferredFrame != nil {
		p.deferredFrame = nil
		p.abortMainFrame(cc.CommitAbortedNotVisible)
	}
}

// CommitRequested implements layer.Proxy.
func (p *ThreadProxy) CommitRequested() bool { return p.commitRequested }

// beginMainFrame runs a main frame on the main runner. A frame that
// commits blocks until the impl side has copied the tree.
func (p *ThreadProxy) beginMainFrame(args cc.BeginFrameArgs) {
	if p.stopped {
		return
	}
	if p.deferCommits {
		cc.Logger().Debug("proxy: main frame deferred", "seq", args.SequenceNumber)
		p.deferredFrame = &args
		return
	}
	p.postImpl(p.sched.NotifyBeginMainFrameStarted)
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

	done := make(chan struct{})
	started := false
	err := taskrunner.PostAndWait(p.implRunner, func() {
		if p.implStopped {
			return
		}
		started = true
		p.commitDone = done
		p.sched.NotifyReadyToCommit()
	})
	if err != nil || !started {
		cc.Logger().Warn("proxy: commit dropped", "err", err)
		p.inMainFrame = false
		p.host.BreakSwapPromises(swappromise.CommitFails)
		return
	}
	p.waitForCommit(done)
	p.inMainFrame = false
	p.host.CommitComplete()
}

// waitForCommit blocks until done is closed. A main side that shares its
// goroutine with the impl side cannot wait for a later impl task and
// proceeds.
func (p *ThreadProxy) waitForCommit(done <-chan struct{}) {
	if p.implRunner.BelongsToCurrentThread() {
		select {
		case <-done:
		default:
			cc.Logger().Warn("proxy: commit not finished on a shared runner; continuing")
		}
		return
	}
	<-done
}

func (p *ThreadProxy) abortMainFrame(reason cc.CommitEarlyOutReason) {
	p.inMainFrame = false
	p.host.BeginMainFrameAborted(reason)
	p.postImpl(func() { p.sched.BeginMainFrameAborted(reason) })
}

// releaseCommit unblocks the main goroutine waiting in a commit.
func (p *ThreadProxy) releaseCommit() {
	if p.commitDone != nil {
		close(p.commitDone)
		p.commitDone = nil
	}
}

// WillBeginImplFrame implements scheduler.Client.
func (p *ThreadProxy) WillBeginImplFrame(cc.BeginFrameArgs) {}

// ScheduledActionSendBeginMainFrame implements scheduler.Client.
func (p *ThreadProxy) ScheduledActionSendBeginMainFrame(args cc.BeginFrameArgs) {
	p.postMain(func() { p.beginMainFrame(args) })
}

// ScheduledActionCommit implements scheduler.Client. It runs while the
// main goroutine is blocked in beginMainFrame.
func (p *ThreadProxy) ScheduledActionCommit() {
	p.host.FinishCommitOnImplThread(p.hi)
	p.hi.CommitComplete()
	if p.settings.WaitForActivation && p.hi.PendingTree() != nil {
		return
	}
	p.releaseCommit()
}

// ScheduledActionActivateSyncTree implements scheduler.Client.
func (p *ThreadProxy) ScheduledActionActivateSyncTree() { p.hi.ActivateSyncTree() }

// ScheduledActionDrawAndSwap implements scheduler.Client.
func (p *ThreadProxy) ScheduledActionDrawAndSwap() scheduler.DrawResult {
	result := drawAndSwap(p.hi)
	if result == scheduler.DrawSuccess && p.commitAwaitingDraw {
		p.commitAwaitingDraw = false
		p.postMain(p.host.DidCommitAndDrawFrame)
	}
	return result
}

// ScheduledActionBeginOutputSurfaceCreation implements scheduler.Client.
// The surface is created by the embedder on the main runner and bound on
// the impl runner.
func (p *ThreadProxy) ScheduledActionBeginOutputSurfaceCreation() {
	p.postMain(func() {
		out, err := p.host.RequestNewOutputSurface()
		p.postImpl(func() { p.initializeOutputSurface(out, err) })
	})
}

func (p *ThreadProxy) initializeOutputSurface(out surface.OutputSurface, err error) {
	if p.implStopped {
		return
	}
	if err == nil {
		err = p.hi.InitializeOutputSurface(out)
	}
	if err != nil {
		cc.Logger().Warn("proxy: output surface creation failed", "err", err)
		p.sched.DidFailToCreateOutputSurface()
		return
	}
	p.sched.SetMaxPendingSwaps(p.hi.MaxFramesPending())
	p.postMain(func() {
		p.commitRequested = true
		p.host.DidInitializeOutputSurface()
	})
	p.sched.DidCreateAndInitializeOutputSurface()
}

// ScheduledActionPrepareTiles implements scheduler.Client.
func (p *ThreadProxy) ScheduledActionPrepareTiles() { p.hi.PrepareTiles() }

// DidFinishImplFrame implements scheduler.Client.
func (p *ThreadProxy) DidFinishImplFrame() {}

// NotifyReadyToActivate implements impl.Client.
func (p *ThreadProxy) NotifyReadyToActivate() { p.sched.NotifyReadyToActivate() }

// NotifyReadyToDraw implements impl.Client.
func (p *ThreadProxy) NotifyReadyToDraw() {}

// SetNeedsRedrawOnImplThread implements impl.Client.
func (p *ThreadProxy) SetNeedsRedrawOnImplThread() { p.sched.SetNeedsRedraw() }

// SetNeedsPrepareTilesOnImplThread implements impl.Client.
func (p *ThreadProxy) SetNeedsPrepareTilesOnImplThread() { p.sched.SetNeedsPrepareTiles() }

// DidLoseOutputSurfaceOnImplThread implements impl.Client.
func (p *ThreadProxy) DidLoseOutputSurfaceOnImplThread() {
	p.postMain(p.host.DidLoseOutputSurface)
	p.sched.DidLoseOutputSurface()
}

// DidSwapBuffersCompleteOnImplThread implements impl.Client.
func (p *ThreadProxy) DidSwapBuffersCompleteOnImplThread() {
	p.sched.DidSwapBuffersComplete()
	p.postMain(p.host.DidCompleteSwapBuffers)
}

// DidActivateSyncTree implements impl.Client.
func (p *ThreadProxy) DidActivateSyncTree() {
	p.commitAwaitingDraw = true
	p.releaseCommit()
}
