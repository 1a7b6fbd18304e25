package proxy_test

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/proxy"
	"github.com/gogpu/cc/scheduler"
	"github.com/gogpu/cc/surface"
	"github.com/gogpu/cc/swappromise"
)

var viewport = geom.Size{Width: 50, Height: 50}

type hostClient struct {
	layer.BaseClient

	surfaces         []*surface.SoftwareOutputSurface
	mainFrames       int
	commits          int
	commitsAndDraws  int
	swapsComplete    int
	aborts           []cc.CommitEarlyOutReason
	drawn            chan struct{}
	onBeginMainFrame func()
}

func (c *hostClient) BeginMainFrame(cc.BeginFrameArgs) {
	c.mainFrames++
	if c.onBeginMainFrame != nil {
		c.onBeginMainFrame()
	}
}

func (c *hostClient) DidCommit() { c.commits++ }

func (c *hostClient) DidCommitAndDrawFrame() {
	c.commitsAndDraws++
	if c.drawn != nil {
		select {
		case c.drawn <- struct{}{}:
		default:
		}
	}
}

func (c *hostClient) DidCompleteSwapBuffers() { c.swapsComplete++ }

func (c *hostClient) DidBeginMainFrameAborted(reason cc.CommitEarlyOutReason) {
	c.aborts = append(c.aborts, reason)
}

func (c *hostClient) CreateOutputSurface() (surface.OutputSurface, error) {
	s := surface.NewSoftwareOutputSurface(viewport)
	c.surfaces = append(c.surfaces, s)
	return s, nil
}

func (c *hostClient) surface() *surface.SoftwareOutputSurface {
	return c.surfaces[len(c.surfaces)-1]
}

// damageRecorder keeps the damage of every swapped frame.
type damageRecorder struct {
	swapped []geom.Rect
	skipped int
}

func (r *damageRecorder) WillDrawFrame(*impl.FrameData) {}

func (r *damageRecorder) DidSwapFrame(frame *impl.FrameData, swapped bool) {
	if swapped {
		r.swapped = append(r.swapped, frame.DamageRect)
		return
	}
	r.skipped++
}

func (r *damageRecorder) last() geom.Rect {
	if len(r.swapped) == 0 {
		return geom.Rect{}
	}
	return r.swapped[len(r.swapped)-1]
}

type pipeline struct {
	host   *layer.LayerTreeHost
	proxy  proxy.Proxy
	client *hostClient
	source *scheduler.ManualBeginFrameSource
	main   *taskrunner.Manual
	impl   *taskrunner.Manual
	root   *layer.Layer
	damage *damageRecorder
	now    time.Time
}

func newPipeline(t *testing.T, threaded bool, opts ...cc.SettingsOption) *pipeline {
	t.Helper()
	opts = append([]cc.SettingsOption{cc.WithRasterWorkers(1), cc.WithThreaded(threaded)}, opts...)
	settings := cc.NewSettings(opts...)
	pl := &pipeline{
		client: &hostClient{},
		source: scheduler.NewManualBeginFrameSource(16 * time.Millisecond),
		main:   taskrunner.NewManual(),
		root:   layer.New(),
		damage: &damageRecorder{},
		now:    time.Unix(1000, 0),
	}
	pl.impl = pl.main
	if threaded {
		pl.impl = taskrunner.NewManual()
	}
	pl.host = layer.NewLayerTreeHost(pl.client, settings)
	pl.proxy = proxy.New(pl.host, pl.main, pl.impl, pl.source)
	pl.proxy.HostImpl().SetDrawObserver(pl.damage)
	t.Cleanup(pl.proxy.Stop)

	pl.host.SetViewportSize(viewport)
	pl.root.SetBounds(viewport)
	pl.host.SetRootLayer(pl.root)
	pl.proxy.Start()
	pl.pump()
	return pl
}

// pump runs tasks on both runners, delayed ones included, until neither
// has work left.
func (pl *pipeline) pump() {
	for range 1000 {
		n := pl.main.RunPending()
		if pl.impl != pl.main {
			n += pl.impl.RunPending()
		}
		if n > 0 {
			continue
		}
		switch {
		case pl.impl.HasPendingTasks():
			pl.impl.RunUntilIdle(1)
		case pl.main.HasPendingTasks():
			pl.main.RunUntilIdle(1)
		default:
			return
		}
	}
}

// frame delivers pending requests, ticks one BeginFrame and runs
// everything it causes. It reports whether the scheduler wanted the frame.
func (pl *pipeline) frame() bool {
	pl.pump()
	pl.now = pl.now.Add(16 * time.Millisecond)
	ticked := pl.source.Tick(pl.now)
	pl.pump()
	return ticked
}

func (pl *pipeline) activeLayer(l *layer.Layer) *impl.LayerImpl {
	return pl.proxy.HostImpl().ActiveTree().LayerByID(l.ID())
}

func solid(size int) *layer.SolidColorLayer {
	l := layer.NewSolidColorLayer()
	l.SetBounds(geom.Size{Width: size, Height: size})
	l.SetBackgroundColor(gputypes.Color{R: 1, A: 1})
	return l
}

func rect(x, y, w, h int) geom.Rect {
	return geom.Rect{X: x, Y: y, Width: w, Height: h}
}

func forEachMode(t *testing.T, fn func(t *testing.T, threaded bool)) {
	t.Run("single thread", func(t *testing.T) { fn(t, false) })
	t.Run("threaded", func(t *testing.T) { fn(t, true) })
}

func TestFirstFrameCommitsAndDraws(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		pl.root.AddChild(solid(20).Layer)
		pl.frame()

		assert.Equal(t, 1, pl.client.commits)
		assert.Equal(t, 1, pl.client.commitsAndDraws)
		assert.Equal(t, 1, pl.client.surface().FrameCount())
		assert.Equal(t, 1, pl.client.swapsComplete)
		assert.Equal(t, []geom.Rect{rect(0, 0, 50, 50)}, pl.damage.swapped)
		assert.Equal(t, 1, pl.host.SourceFrameNumber())
		require.NoError(t, pl.proxy.Scheduler().Ordering().Err())
	})
}

func TestCommitRequestsCoalescePerFrame(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		child := solid(20)
		pl.root.AddChild(child.Layer)
		pl.frame()
		commits := pl.client.commits

		for i := range 5 {
			child.SetOpacity(0.1 * float64(i+1))
			pl.host.SetNeedsCommit()
		}
		assert.True(t, pl.host.CommitRequested())
		pl.frame()
		assert.Equal(t, commits+1, pl.client.commits)
		assert.False(t, pl.host.CommitRequested())
		assert.InDelta(t, 0.5, pl.activeLayer(child.Layer).Opacity(), 1e-9)

		pl.frame()
		pl.frame()
		assert.Equal(t, commits+1, pl.client.commits, "no commit without a request")
		require.NoError(t, pl.proxy.Scheduler().Ordering().Err())
	})
}

func TestAbortedCommitDoesNotStall(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		child := solid(20)
		pl.root.AddChild(child.Layer)
		pl.frame()
		commits := pl.client.commits
		frames := pl.client.surface().FrameCount()

		for range 3 {
			pl.host.SetNeedsUpdateLayers()
			pl.frame()
		}
		assert.Equal(t, commits, pl.client.commits)
		assert.Equal(t, []cc.CommitEarlyOutReason{
			cc.CommitFinishedNoUpdates, cc.CommitFinishedNoUpdates, cc.CommitFinishedNoUpdates,
		}, pl.client.aborts)

		child.SetBounds(geom.Size{Width: 30, Height: 30})
		pl.frame()
		assert.Equal(t, commits+1, pl.client.commits)
		assert.Equal(t, frames+1, pl.client.surface().FrameCount())
		assert.Equal(t, rect(0, 0, 30, 30), pl.damage.last())
		require.NoError(t, pl.proxy.Scheduler().Ordering().Err())
	})
}

func TestSwapPromiseOutcomes(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		child := solid(20)
		pl.root.AddChild(child.Layer)
		pl.frame()

		t.Run("swapped", func(t *testing.T) {
			p := swappromise.NewRecorder()
			pl.host.QueueSwapPromise(p)
			child.SetPosition(geom.Point{X: 5, Y: 5})
			pl.frame()

			assert.True(t, p.Swapped())
			assert.True(t, p.Disposed())
			assert.True(t, p.Activated())
			assert.NoError(t, p.Verify())
		})

		t.Run("commit without updates", func(t *testing.T) {
			p := swappromise.NewRecorder()
			pl.host.QueueSwapPromise(p)
			pl.host.SetNeedsUpdateLayers()
			pl.frame()

			reason, ok := p.DidNotSwapReason()
			require.True(t, ok)
			assert.Equal(t, swappromise.CommitNoUpdate, reason)
			assert.NoError(t, p.Verify())
		})

		t.Run("swap without damage", func(t *testing.T) {
			p := swappromise.NewRecorder()
			pl.host.QueueSwapPromise(p)
			pl.host.SetNeedsCommit()
			pl.frame()

			reason, ok := p.DidNotSwapReason()
			require.True(t, ok)
			assert.Equal(t, swappromise.SwapFails, reason)
			assert.True(t, p.Activated())
			assert.NoError(t, p.Verify())
		})

		t.Run("commit fails", func(t *testing.T) {
			p := swappromise.NewRecorder()
			pl.host.QueueSwapPromise(p)
			pl.host.SetDeferCommits(true)
			pl.host.SetNeedsCommit()
			pl.frame()
			require.False(t, p.Disposed(), "held by deferred main frame")

			pl.host.SetVisible(false)
			pl.pump()
			reason, ok := p.DidNotSwapReason()
			require.True(t, ok)
			assert.Equal(t, swappromise.CommitFails, reason)
			assert.NoError(t, p.Verify())
			assert.Contains(t, pl.client.aborts, cc.CommitAbortedNotVisible)
		})
	})
}

func TestDeferredMainFrameIsDeliveredOnce(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		child := solid(20)
		pl.root.AddChild(child.Layer)
		pl.frame()
		commits, mainFrames := pl.client.commits, pl.client.mainFrames
		frames := pl.client.surface().FrameCount()

		pl.host.SetDeferCommits(true)
		child.SetOpacity(0.5)
		pl.frame()
		pl.frame()
		assert.Equal(t, mainFrames, pl.client.mainFrames)
		assert.Equal(t, commits, pl.client.commits)

		// Impl frames keep drawing.
		pl.host.SetNeedsRedraw()
		pl.frame()
		assert.Equal(t, frames+1, pl.client.surface().FrameCount())

		pl.host.SetDeferCommits(false)
		pl.pump()
		assert.Equal(t, mainFrames+1, pl.client.mainFrames)
		assert.Equal(t, commits+1, pl.client.commits)

		pl.frame()
		pl.frame()
		assert.Equal(t, mainFrames+1, pl.client.mainFrames)
		assert.InDelta(t, 0.5, pl.activeLayer(child.Layer).Opacity(), 1e-9)
	})
}

func TestPushPropertiesRoundTrip(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		child := layer.New()
		child.SetBounds(geom.Size{Width: 10, Height: 10})
		pl.root.AddChild(child)
		pl.frame()
		require.NotNil(t, pl.activeLayer(child))
		assert.Equal(t, geom.Size{Width: 10, Height: 10}, pl.activeLayer(child).Bounds())

		child.SetBounds(geom.Size{Width: 20, Height: 20})
		child.SetOpacity(0.25)
		child.SetHideLayerAndSubtree(true)
		pl.frame()
		got := pl.activeLayer(child)
		assert.Equal(t, geom.Size{Width: 20, Height: 20}, got.Bounds())
		assert.InDelta(t, 0.25, got.Opacity(), 1e-9)
		assert.True(t, got.HideLayerAndSubtree())
	})
}

func TestOpacityToggleDamagesChild(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		parent := layer.New()
		parent.SetBounds(geom.Size{Width: 15, Height: 15})
		parent.SetOpacity(0)
		parent.AddChild(solid(25).Layer)
		pl.root.AddChild(parent)
		pl.frame()
		require.Equal(t, rect(0, 0, 50, 50), pl.damage.last())

		for _, opacity := range []float64{1, 0, 1} {
			parent.SetOpacity(opacity)
			pl.frame()
			assert.Equal(t, rect(0, 0, 25, 25), pl.damage.last(), "opacity %v", opacity)
		}
	})
}

func TestRedrawRectDamage(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		pl.root.AddChild(solid(40).Layer)
		pl.frame()
		require.Equal(t, rect(0, 0, 50, 50), pl.damage.last())
		commits := pl.client.commits

		pl.host.SetNeedsRedrawRect(rect(10, 10, 20, 20))
		pl.frame()
		assert.Equal(t, rect(10, 10, 20, 20), pl.damage.last())
		assert.Equal(t, commits, pl.client.commits, "redraw needs no commit")
	})
}

func TestDeviceScaleFactorChange(t *testing.T) {
	pl := newPipeline(t, true)
	pl.root.AddChild(solid(10).Layer)
	pl.frame()
	commits := pl.client.commits
	hi := pl.proxy.HostImpl()

	hi.BlockNotifyReadyToActivateForTesting(true)
	pl.host.SetDeviceScaleFactor(4)
	pl.frame()
	assert.Equal(t, commits+1, pl.client.commits)
	require.NotNil(t, hi.PendingTree())
	assert.Equal(t, 4.0, hi.PendingTree().DeviceScaleFactor())
	assert.Equal(t, 1.0, hi.ActiveTree().DeviceScaleFactor(), "active tree keeps the old scale")

	hi.BlockNotifyReadyToActivateForTesting(false)
	pl.pump()
	assert.Nil(t, hi.PendingTree())
	assert.Equal(t, 4.0, hi.ActiveTree().DeviceScaleFactor())

	pl.frame()
	assert.Equal(t, rect(0, 0, 50, 50), pl.damage.last())

	pl.frame()
	pl.frame()
	assert.Equal(t, commits+1, pl.client.commits, "one commit for the scale change")
}

func TestHiddenHostDoesNotCommit(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		pl.root.AddChild(solid(10).Layer)
		pl.frame()
		commits := pl.client.commits

		pl.host.SetVisible(false)
		pl.pump()
		pl.host.SetNeedsCommit()
		pl.pump()
		assert.False(t, pl.frame(), "hidden scheduler does not observe")
		assert.Equal(t, commits, pl.client.commits)

		pl.host.SetVisible(true)
		pl.pump()
		pl.frame()
		assert.Equal(t, commits+1, pl.client.commits)
		assert.Equal(t, rect(0, 0, 50, 50), pl.damage.last(), "shown again: full redraw")
	})
}

func TestLostOutputSurfaceIsReplaced(t *testing.T) {
	forEachMode(t, func(t *testing.T, threaded bool) {
		pl := newPipeline(t, threaded)
		pl.root.AddChild(solid(10).Layer)
		pl.frame()
		require.Len(t, pl.client.surfaces, 1)
		commits := pl.client.commits

		pl.client.surface().LoseContext()
		pl.pump()
		require.Len(t, pl.client.surfaces, 2)
		assert.False(t, pl.host.OutputSurfaceLost())

		pl.frame()
		assert.Equal(t, commits+1, pl.client.commits, "a new surface needs a commit")
		assert.Equal(t, 1, pl.client.surface().FrameCount())
		assert.Equal(t, rect(0, 0, 50, 50), pl.damage.last())
	})
}

func TestThreadedPipelineOnRealRunners(t *testing.T) {
	mainRunner := taskrunner.New("main")
	implRunner := taskrunner.New("impl")
	source := scheduler.NewSyntheticBeginFrameSource(time.Millisecond)
	t.Cleanup(func() {
		source.Stop()
		implRunner.Stop()
		mainRunner.Stop()
	})

	client := &hostClient{drawn: make(chan struct{}, 1)}
	settings := cc.NewSettings(cc.WithThreaded(true), cc.WithRasterWorkers(1), cc.WithWaitForActivation(true))
	var p proxy.Proxy
	require.NoError(t, taskrunner.PostAndWait(mainRunner, func() {
		host := layer.NewLayerTreeHost(client, settings)
		p = proxy.New(host, mainRunner, implRunner, source)
		root := layer.New()
		root.SetBounds(viewport)
		root.AddChild(solid(30).Layer)
		host.SetViewportSize(viewport)
		host.SetRootLayer(root)
		p.Start()
	}))

	select {
	case <-client.drawn:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame was committed and drawn")
	}
	require.NoError(t, taskrunner.PostAndWait(mainRunner, p.Stop))

	var frames int
	require.NoError(t, taskrunner.PostAndWait(mainRunner, func() {
		frames = client.surface().FrameCount()
	}))
	assert.GreaterOrEqual(t, frames, 1)
}
