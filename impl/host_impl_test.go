package impl_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/layer"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/surface"
	"github.com/gogpu/cc/swappromise"
)

type recordingClient struct {
	readyToActivate int
	readyToDraw     int
	redraws         int
	activations     int
	lost            int
	swapsComplete   int
}

func (c *recordingClient) NotifyReadyToActivate()              { c.readyToActivate++ }
func (c *recordingClient) NotifyReadyToDraw()                  { c.readyToDraw++ }
func (c *recordingClient) SetNeedsRedrawOnImplThread()         { c.redraws++ }
func (c *recordingClient) SetNeedsPrepareTilesOnImplThread()   {}
func (c *recordingClient) DidLoseOutputSurfaceOnImplThread()   { c.lost++ }
func (c *recordingClient) DidSwapBuffersCompleteOnImplThread() { c.swapsComplete++ }
func (c *recordingClient) DidActivateSyncTree()                { c.activations++ }

type fixture struct {
	host    *layer.LayerTreeHost
	impl    *impl.LayerTreeHostImpl
	client  *recordingClient
	runner  *taskrunner.Manual
	surface *surface.SoftwareOutputSurface
	root    *layer.Layer
}

func newFixture(t *testing.T, opts ...cc.SettingsOption) *fixture {
	t.Helper()
	settings := cc.NewSettings(append([]cc.SettingsOption{cc.WithRasterWorkers(1)}, opts...)...)
	f := &fixture{
		host:    layer.NewLayerTreeHost(nil, settings),
		client:  &recordingClient{},
		runner:  taskrunner.NewManual(),
		surface: surface.NewSoftwareOutputSurface(geom.Size{Width: 50, Height: 50}),
		root:    layer.New(),
	}
	f.impl = impl.NewLayerTreeHostImpl(settings, f.client, f.runner)
	t.Cleanup(f.impl.Close)
	require.NoError(t, f.impl.InitializeOutputSurface(f.surface))

	f.host.SetViewportSize(geom.Size{Width: 50, Height: 50})
	f.root.SetBounds(geom.Size{Width: 50, Height: 50})
	f.host.SetRootLayer(f.root)
	return f
}

// commit runs one main frame into the sync tree. Pending trees are not
// activated.
func (f *fixture) commit() {
	f.host.UpdateLayers()
	f.host.WillCommit()
	f.host.FinishCommitOnImplThread(f.impl)
	f.impl.CommitComplete()
	f.host.CommitComplete()
}

func (f *fixture) draw(t *testing.T) (*impl.FrameData, bool) {
	t.Helper()
	var frame impl.FrameData
	require.Equal(t, impl.DrawSuccess, f.impl.PrepareToDraw(&frame))
	f.impl.DrawLayers(&frame)
	swapped := f.impl.SwapBuffers(&frame)
	f.runner.RunUntilIdle(100)
	return &frame, swapped
}

func rect(x, y, w, h int) geom.Rect {
	return geom.Rect{X: x, Y: y, Width: w, Height: h}
}

func solid(size int) *layer.SolidColorLayer {
	l := layer.NewSolidColorLayer()
	l.SetBounds(geom.Size{Width: size, Height: size})
	l.SetBackgroundColor(gputypes.Color{R: 1, A: 1})
	return l
}

func TestFirstFrameIsFullyDamaged(t *testing.T) {
	f := newFixture(t)
	f.root.AddChild(solid(10).Layer)
	f.commit()

	frame, swapped := f.draw(t)
	require.True(t, swapped)
	assert.Equal(t, rect(0, 0, 50, 50), frame.DamageRect)
	assert.Equal(t, 1, f.surface.FrameCount())
	assert.Equal(t, 1, f.client.swapsComplete)
}

func TestOpacityToggleDamagesChildRect(t *testing.T) {
	f := newFixture(t)
	parent := layer.New()
	parent.SetBounds(geom.Size{Width: 15, Height: 15})
	parent.SetOpacity(0)
	child := solid(25)
	parent.AddChild(child.Layer)
	f.root.AddChild(parent)
	f.commit()

	frame, _ := f.draw(t)
	assert.Equal(t, rect(0, 0, 50, 50), frame.DamageRect)

	for _, opacity := range []float64{1, 0, 1} {
		parent.SetOpacity(opacity)
		f.commit()
		frame, swapped := f.draw(t)
		require.True(t, swapped)
		assert.Equal(t, rect(0, 0, 25, 25), frame.DamageRect, "opacity %v", opacity)
	}
}

func TestRedrawRectDamage(t *testing.T) {
	f := newFixture(t)
	f.root.AddChild(solid(40).Layer)
	f.commit()
	f.draw(t)

	f.impl.SetNeedsRedrawRect(rect(10, 10, 20, 20))
	frame, swapped := f.draw(t)
	require.True(t, swapped)
	assert.Equal(t, rect(10, 10, 20, 20), frame.DamageRect)
}

func TestNoDamageSkipsSwap(t *testing.T) {
	f := newFixture(t)
	f.root.AddChild(solid(40).Layer)
	f.commit()
	f.draw(t)

	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	frame, swapped := f.draw(t)
	assert.True(t, frame.HasNoDamage)
	assert.False(t, swapped)
	assert.Equal(t, 1, f.surface.FrameCount())

	reason, ok := p.DidNotSwapReason()
	require.True(t, ok)
	assert.Equal(t, swappromise.SwapFails, reason)
	assert.True(t, p.Disposed())
	assert.NoError(t, p.Verify())
}

func TestSwapResolvesPromises(t *testing.T) {
	f := newFixture(t)
	child := solid(20)
	f.root.AddChild(child.Layer)
	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	_, swapped := f.draw(t)
	require.True(t, swapped)
	assert.True(t, p.Swapped())
	assert.True(t, p.Activated(), "commits to the active tree activate at once")
	require.NotNil(t, p.Metadata())
	assert.Equal(t, 0, p.Metadata().SourceFrameNumber)
	assert.True(t, p.Disposed())
	assert.NoError(t, p.Verify())
}

func TestThreadedCommitGoesThroughPendingTree(t *testing.T) {
	f := newFixture(t, cc.WithThreaded(true))
	child := solid(20)
	f.root.AddChild(child.Layer)
	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	require.NotNil(t, f.impl.PendingTree())
	assert.Nil(t, f.impl.ActiveTree().Root())
	assert.Equal(t, 1, f.client.readyToActivate)
	assert.False(t, f.impl.CanDraw())

	f.impl.ActivateSyncTree()
	assert.Nil(t, f.impl.PendingTree())
	assert.NotNil(t, f.impl.RecycleTree())
	assert.Equal(t, 1, f.client.activations)
	assert.True(t, p.Activated())
	assert.False(t, p.Disposed())

	_, swapped := f.draw(t)
	require.True(t, swapped)
	assert.True(t, p.Swapped())
	assert.NoError(t, p.Verify())

	// The recycle tree is reused for the next commit.
	recycled := f.impl.RecycleTree()
	child.SetPosition(geom.Point{X: 5, Y: 5})
	f.commit()
	assert.Same(t, recycled, f.impl.PendingTree())
	assert.Nil(t, f.impl.RecycleTree())
	assert.Equal(t, 1, f.impl.PendingTree().SourceFrameNumber())
}

func TestBlockedReadyToActivateIsDeliveredOnUnblock(t *testing.T) {
	f := newFixture(t, cc.WithThreaded(true))
	f.impl.BlockNotifyReadyToActivateForTesting(true)
	f.commit()
	assert.Zero(t, f.client.readyToActivate)

	f.impl.BlockNotifyReadyToActivateForTesting(false)
	assert.Equal(t, 1, f.client.readyToActivate)
}

func TestPinnedPromiseFailsWhenOvertaken(t *testing.T) {
	f := newFixture(t, cc.WithThreaded(true))
	f.root.AddChild(solid(20).Layer)
	f.commit()
	f.impl.ActivateSyncTree()

	pinned := swappromise.NewRecorder()
	f.impl.ActiveTree().QueuePinnedSwapPromise(pinned)

	f.host.SetNeedsCommit()
	f.commit()
	f.impl.ActivateSyncTree()

	reason, ok := pinned.DidNotSwapReason()
	require.True(t, ok)
	assert.Equal(t, swappromise.SwapFails, reason)
	assert.True(t, pinned.Disposed())
	assert.NoError(t, pinned.Verify())
}

func TestCopyRequestIsAnsweredByDraw(t *testing.T) {
	f := newFixture(t)
	child := solid(20)
	f.root.AddChild(child.Layer)

	var results []quad.CopyResult
	child.RequestCopyOfOutput(quad.NewCopyOutputRequest(func(r quad.CopyResult) {
		results = append(results, r)
	}))
	f.commit()
	assert.Equal(t, 2, f.impl.ActiveTree().RenderSurfaceCount())

	_, swapped := f.draw(t)
	require.True(t, swapped)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsEmpty())
}

func TestLostOutputSurfaceBreaksPromises(t *testing.T) {
	f := newFixture(t)
	f.root.AddChild(solid(20).Layer)
	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	f.surface.LoseContext()
	f.runner.RunUntilIdle(100)

	assert.Equal(t, 1, f.client.lost)
	assert.False(t, f.impl.CanDraw())
	reason, ok := p.DidNotSwapReason()
	require.True(t, ok)
	assert.Equal(t, swappromise.SwapFails, reason)
	assert.NoError(t, p.Verify())

	var frame impl.FrameData
	assert.Equal(t, impl.DrawAbortedContextLost, f.impl.PrepareToDraw(&frame))

	require.NoError(t, f.impl.InitializeOutputSurface(surface.NewSoftwareOutputSurface(geom.Size{Width: 50, Height: 50})))
	assert.True(t, f.impl.CanDraw())
	frame2, swapped := f.draw(t)
	require.True(t, swapped)
	assert.Equal(t, rect(0, 0, 50, 50), frame2.DamageRect)
}

func TestImplOpacitySurvivesCommit(t *testing.T) {
	f := newFixture(t)
	child := solid(20)
	f.root.AddChild(child.Layer)
	f.commit()

	require.True(t, f.impl.AnimateOpacity(child.ID(), 0.5))
	opacity := func() float64 {
		li := f.impl.ActiveTree().LayerByID(child.ID())
		return f.impl.ActiveTree().PropertyTrees().Effect.Node(li.EffectTreeIndex()).Opacity
	}
	assert.InDelta(t, 0.5, opacity(), 1e-9)

	f.host.SetNeedsCommit()
	f.commit()
	assert.InDelta(t, 0.5, opacity(), 1e-9, "unrelated commit")

	child.SetOpacity(0.25)
	f.commit()
	assert.InDelta(t, 0.25, opacity(), 1e-9, "producer change wins")
}

func TestHiddenHostBreaksPromises(t *testing.T) {
	f := newFixture(t)
	f.root.AddChild(solid(20).Layer)
	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	f.impl.SetVisible(false)
	reason, ok := p.DidNotSwapReason()
	require.True(t, ok)
	assert.Equal(t, swappromise.SwapFails, reason)
	assert.NoError(t, p.Verify())

	redraws := f.client.redraws
	f.impl.SetVisible(true)
	assert.Equal(t, redraws+1, f.client.redraws)
}
