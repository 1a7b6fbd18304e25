package layer

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/displaylist"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/swappromise"
)

type nopImplClient struct{}

func (nopImplClient) NotifyReadyToActivate()              {}
func (nopImplClient) NotifyReadyToDraw()                  {}
func (nopImplClient) SetNeedsRedrawOnImplThread()         {}
func (nopImplClient) SetNeedsCommitOnImplThread()         {}
func (nopImplClient) SetNeedsPrepareTilesOnImplThread()   {}
func (nopImplClient) DidLoseOutputSurfaceOnImplThread()   {}
func (nopImplClient) DidSwapBuffersCompleteOnImplThread() {}
func (nopImplClient) DidActivateSyncTree()                {}

// fixture is a host committing straight into the active tree of an impl
// host, without a proxy.
type fixture struct {
	host *LayerTreeHost
	impl *impl.LayerTreeHostImpl
	root *Layer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings := cc.NewSettings(cc.WithRasterWorkers(1))
	f := &fixture{
		host: NewLayerTreeHost(nil, settings),
		impl: impl.NewLayerTreeHostImpl(settings, nopImplClient{}, taskrunner.NewManual()),
		root: New(),
	}
	t.Cleanup(f.impl.Close)
	f.host.SetViewportSize(geom.Size{Width: 50, Height: 50})
	f.root.SetBounds(geom.Size{Width: 50, Height: 50})
	f.host.SetRootLayer(f.root)
	return f
}

func (f *fixture) commit() {
	f.host.UpdateLayers()
	f.host.WillCommit()
	f.host.FinishCommitOnImplThread(f.impl)
	f.impl.CommitComplete()
	f.host.CommitComplete()
}

func (f *fixture) implLayer(l *Layer) *impl.LayerImpl {
	return f.impl.ActiveTree().LayerByID(l.ID())
}

func TestAddingLayerMarksNeedsPush(t *testing.T) {
	f := newFixture(t)
	f.commit()

	child := New()
	assert.False(t, child.NeedsPushProperties(), "detached layer")

	f.root.AddChild(child)
	assert.True(t, f.host.LayerNeedsPushPropertiesForTesting(child))
	assert.True(t, f.root.DescendantNeedsPushProperties())

	f.commit()
	assert.False(t, child.NeedsPushProperties())
	assert.False(t, f.root.DescendantNeedsPushProperties())
}

func TestRemovingLayerClearsNeedsPush(t *testing.T) {
	f := newFixture(t)
	child := New()
	f.root.AddChild(child)
	f.commit()

	child.SetOpacity(0.5)
	require.True(t, child.NeedsPushProperties())

	child.RemoveFromParent()
	assert.False(t, child.NeedsPushProperties())
	assert.False(t, f.root.DescendantNeedsPushProperties())
	assert.Nil(t, child.LayerTreeHost())

	f.root.AddChild(child)
	assert.True(t, child.NeedsPushProperties())
}

func TestPersistNeedsPushSurvivesRemoval(t *testing.T) {
	f := newFixture(t)
	child := New()
	child.SetPersistNeedsPushProperties(true)
	f.root.AddChild(child)
	f.commit()

	assert.True(t, child.NeedsPushProperties(), "persistent flag survives the commit")
	assert.True(t, f.root.DescendantNeedsPushProperties())

	child.RemoveFromParent()
	assert.True(t, child.NeedsPushProperties(), "persistent flag survives removal")

	f.root.AddChild(child)
	assert.True(t, child.NeedsPushProperties())

	child.SetPersistNeedsPushProperties(false)
	f.commit()
	assert.False(t, child.NeedsPushProperties())
}

func TestDetachedMutationIsDeferred(t *testing.T) {
	f := newFixture(t)
	f.commit()

	parent := New()
	child := New()
	parent.AddChild(child)
	child.SetBounds(geom.Size{Width: 7, Height: 7})
	assert.False(t, child.NeedsPushProperties())
	assert.False(t, parent.DescendantNeedsPushProperties())

	f.root.AddChild(parent)
	assert.True(t, parent.NeedsPushProperties())
	assert.True(t, child.NeedsPushProperties())

	f.commit()
	assert.Equal(t, geom.Size{Width: 7, Height: 7}, f.implLayer(child).Bounds())
}

func TestPushSkipsCleanSubtrees(t *testing.T) {
	f := newFixture(t)
	a, a1, a2 := New(), New(), New()
	b, b1 := New(), New()
	a.AddChild(a1)
	a.AddChild(a2)
	b.AddChild(b1)
	f.root.AddChild(a)
	f.root.AddChild(b)
	f.commit()

	for _, l := range []*Layer{f.root, a, a1, a2, b, b1} {
		require.False(t, l.NeedsPushProperties(), "layer %d", l.ID())
		require.False(t, l.DescendantNeedsPushProperties(), "layer %d", l.ID())
	}

	b1.SetPosition(geom.Point{X: 3, Y: 4})
	assert.True(t, b1.NeedsPushProperties())
	assert.True(t, b.DescendantNeedsPushProperties())
	assert.True(t, f.root.DescendantNeedsPushProperties())
	assert.False(t, b.NeedsPushProperties())
	assert.False(t, a.DescendantNeedsPushProperties())
	assert.False(t, f.root.NeedsPushProperties())

	f.commit()
	assert.Equal(t, []int{b1.ID()}, f.impl.ActiveTree().PushedLayerIDs())
	assert.Equal(t, geom.Point{X: 3, Y: 4}, f.implLayer(b1).Position())
	assert.False(t, f.root.DescendantNeedsPushProperties())
}

func TestMaskAndReplicaCountAsDependents(t *testing.T) {
	f := newFixture(t)
	owner := New()
	owner.SetBounds(geom.Size{Width: 20, Height: 20})
	f.root.AddChild(owner)
	f.commit()

	mask := NewSolidColorLayer()
	owner.SetMaskLayer(mask.Layer)
	assert.Equal(t, owner, mask.Parent())
	assert.Equal(t, owner.Bounds(), mask.Bounds())
	assert.True(t, owner.DescendantNeedsPushProperties())

	f.commit()
	li := f.implLayer(owner)
	require.NotNil(t, li.MaskLayer())
	assert.Equal(t, mask.ID(), li.MaskLayer().ID())

	replica := New()
	owner.SetReplicaLayer(replica)
	replica.SetPosition(geom.Point{X: 25})
	f.commit()
	require.NotNil(t, f.implLayer(owner).ReplicaLayer())

	mask.RemoveFromParent()
	assert.Nil(t, owner.MaskLayer())
	f.commit()
	assert.Nil(t, f.implLayer(owner).MaskLayer())
	assert.Nil(t, f.impl.ActiveTree().LayerByID(mask.ID()))
}

func TestPushPropertiesRoundTrip(t *testing.T) {
	f := newFixture(t)
	child := NewSolidColorLayer()
	child.SetBackgroundColor(gputypes.Color{R: 1, A: 1})
	child.SetBounds(geom.Size{Width: 10, Height: 10})
	f.root.AddChild(child.Layer)
	f.commit()
	assert.Equal(t, geom.Size{Width: 10, Height: 10}, f.implLayer(child.Layer).Bounds())

	child.SetBounds(geom.Size{Width: 20, Height: 20})
	child.SetOpacity(0.25)
	child.SetHideLayerAndSubtree(true)
	f.commit()

	li := f.implLayer(child.Layer)
	assert.Equal(t, geom.Size{Width: 20, Height: 20}, li.Bounds())
	assert.Equal(t, 0.25, li.Opacity())
	assert.True(t, li.HideLayerAndSubtree())
	assert.True(t, li.DrawsContent())
}

func TestSourceFrameNumberCountsCommits(t *testing.T) {
	f := newFixture(t)
	for i := range 3 {
		assert.Equal(t, i, f.host.SourceFrameNumber())
		f.commit()
		assert.Equal(t, i, f.impl.ActiveTree().SourceFrameNumber())
	}
	assert.Equal(t, 3, f.host.SourceFrameNumber())
}

func TestBeginMainFrameAbortedBreaksPromises(t *testing.T) {
	tests := []struct {
		name   string
		reason cc.CommitEarlyOutReason
		want   swappromise.DidNotSwapReason
	}{
		{"no updates", cc.CommitFinishedNoUpdates, swappromise.CommitNoUpdate},
		{"not visible", cc.CommitAbortedNotVisible, swappromise.CommitFails},
		{"surface lost", cc.CommitAbortedOutputSurfaceLost, swappromise.CommitFails},
		{"deferred", cc.CommitAbortedDeferredCommit, swappromise.CommitFails},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLayerTreeHost(nil, cc.DefaultSettings())
			p := swappromise.NewRecorder()
			h.QueueSwapPromise(p)
			h.BeginMainFrameAborted(tt.reason)

			reason, ok := p.DidNotSwapReason()
			require.True(t, ok)
			assert.Equal(t, tt.want, reason)
			assert.False(t, p.Activated())
			assert.True(t, p.Disposed())
			assert.Zero(t, h.SwapPromiseCount())
		})
	}
}

func TestSwapPromiseMovesWithCommit(t *testing.T) {
	f := newFixture(t)
	p := swappromise.NewRecorder()
	f.host.QueueSwapPromise(p)
	f.commit()

	assert.Zero(t, f.host.SwapPromiseCount())
	assert.Equal(t, 1, f.impl.ActiveTree().SwapPromiseCount())
	assert.True(t, p.Activated(), "a commit to the active tree activates its promises")
	assert.False(t, p.Disposed())
}

func TestPropertyTreeBuilder(t *testing.T) {
	f := newFixture(t)
	f.host.SetDeviceScaleFactor(2)

	clipper := New()
	clipper.SetBounds(geom.Size{Width: 15, Height: 15})
	clipper.SetMasksToBounds(true)
	clipper.SetOpacity(0.5)

	a := NewSolidColorLayer()
	a.SetBackgroundColor(gputypes.Color{G: 1, A: 1})
	a.SetBounds(geom.Size{Width: 25, Height: 25})
	b := NewSolidColorLayer()
	b.SetBackgroundColor(gputypes.Color{B: 1, A: 1})
	b.SetBounds(geom.Size{Width: 5, Height: 5})
	clipper.AddChild(a.Layer)
	clipper.AddChild(b.Layer)
	f.root.AddChild(clipper)
	f.host.UpdateLayers()

	pt := f.host.PropertyTrees()
	assert.Equal(t, geom.Scaling(2, 2), pt.Transform.Node(property.RootNodeID).Local)
	assert.True(t, pt.Effect.Node(property.RootNodeID).HasRenderSurface)

	tr, eff, clip, _ := clipper.PropertyTreeIndices()
	assert.Equal(t, property.RootNodeID, clip, "a layer's own clip applies to its children")
	assert.True(t, pt.Effect.Node(eff).HasRenderSurface, "translucent with two drawing descendants")
	assert.Equal(t, 0.5, pt.Effect.Node(eff).Opacity)

	_, childEff, childClip, _ := a.PropertyTreeIndices()
	assert.NotEqual(t, property.RootNodeID, childClip)
	assert.Equal(t, clipper.ID(), pt.Clip.Node(childClip).OwnerID)
	assert.Equal(t, tr, pt.Clip.Node(childClip).TransformID)
	assert.Equal(t, eff, pt.Effect.ParentID(childEff))
	assert.False(t, pt.Effect.Node(childEff).HasRenderSurface)

	b.RemoveFromParent()
	f.host.UpdateLayers()
	_, eff, _, _ = clipper.PropertyTreeIndices()
	assert.False(t, pt.Effect.Node(eff).HasRenderSurface, "one drawing descendant")
}

func TestPropertyTreeStampsFollowCommits(t *testing.T) {
	f := newFixture(t)
	child := New()
	f.root.AddChild(child)
	f.commit()
	f.commit()

	child.SetOpacity(0.5)
	f.host.UpdateLayers()
	_, eff, _, _ := child.PropertyTreeIndices()
	assert.Equal(t, 2, f.host.PropertyTrees().Effect.Node(eff).ValueStamp)
}

func TestPictureLayerPaintsOnUpdate(t *testing.T) {
	f := newFixture(t)
	paints := 0
	pl := NewPictureLayer(ContentClientFunc(func(r *displaylist.Recorder, bounds geom.Size) {
		paints++
		r.FillRect(geom.RectF{Width: float64(bounds.Width), Height: float64(bounds.Height)}, gputypes.Color{R: 1, A: 1})
	}))
	pl.SetBounds(geom.Size{Width: 30, Height: 30})
	f.root.AddChild(pl.Layer)

	assert.True(t, f.host.UpdateLayers())
	assert.Equal(t, 1, paints)
	assert.Equal(t, 0, pl.SourceFrameNumber())
	require.NotNil(t, pl.DisplayList())
	assert.False(t, f.host.UpdateLayers(), "nothing invalidated")

	f.host.WillCommit()
	f.host.FinishCommitOnImplThread(f.impl)
	f.impl.CommitComplete()
	f.host.CommitComplete()
	pc, ok := f.implLayer(pl.Layer).Content().(*impl.PictureContent)
	require.True(t, ok)
	assert.Same(t, pl.DisplayList(), pc.DisplayList())

	pl.SetNeedsDisplayRect(geom.Rect{X: 1, Y: 1, Width: 4, Height: 4})
	assert.Equal(t, geom.Rect{X: 1, Y: 1, Width: 4, Height: 4}, pl.UpdateRect())
	f.commit()
	assert.Equal(t, 2, paints)
	assert.Equal(t, 1, pl.SourceFrameNumber())
}

func TestTextureLayerReleasesUncommittedMailbox(t *testing.T) {
	f := newFixture(t)
	tl := NewTextureLayer()
	tl.SetBounds(geom.Size{Width: 8, Height: 8})
	f.root.AddChild(tl.Layer)

	var released []string
	mailbox := func(name string) (resource.TextureMailbox, *resource.ReleaseCallback) {
		return resource.TextureMailbox{Mailbox: quad.Mailbox{Name: name}, Size: geom.Size{Width: 8, Height: 8}},
			resource.NewReleaseCallback(func(quad.SyncToken, bool) { released = append(released, name) })
	}
	tl.SetTextureMailbox(mailbox("first"))
	tl.SetTextureMailbox(mailbox("second"))
	assert.Equal(t, []string{"first"}, released)
	assert.True(t, tl.DrawsContent())

	f.commit()
	tc, ok := f.implLayer(tl.Layer).Content().(*impl.TextureContent)
	require.True(t, ok)
	assert.NotZero(t, tc.ResourceID())
	assert.Equal(t, []string{"first"}, released, "committed mailbox stays in use")
}

func TestUIResourceLayerDrawsRegisteredResource(t *testing.T) {
	f := newFixture(t)
	ul := NewUIResourceLayer()
	ul.SetBounds(geom.Size{Width: 4, Height: 4})
	f.root.AddChild(ul.Layer)
	assert.False(t, ul.DrawsContent())

	ul.SetUIResourceID(3)
	assert.True(t, ul.DrawsContent())
	f.commit()
	uc, ok := f.implLayer(ul.Layer).Content().(*impl.UIResourceContent)
	require.True(t, ok)
	assert.Equal(t, resource.UIResourceID(3), uc.ID)
}

func TestHUDLayerFollowsSettings(t *testing.T) {
	settings := cc.NewSettings(cc.WithShowFPSCounter(true))
	h := NewLayerTreeHost(nil, settings)
	h.SetViewportSize(geom.Size{Width: 40, Height: 20})
	h.SetDeviceScaleFactor(2)
	root := New()
	root.AddChild(New())
	h.SetRootLayer(root)
	h.UpdateLayers()

	hud := h.HeadsUpDisplayLayer()
	require.NotNil(t, hud)
	assert.Same(t, hud.Layer, root.Children()[len(root.Children())-1])
	assert.Equal(t, geom.Size{Width: 20, Height: 10}, hud.Bounds())

	root.AddChild(New())
	h.UpdateLayers()
	assert.Same(t, hud.Layer, root.Children()[len(root.Children())-1], "stays on top")
}

func TestRemovalAbortsCopyRequests(t *testing.T) {
	f := newFixture(t)
	child := New()
	f.root.AddChild(child)

	var results []quad.CopyResult
	child.RequestCopyOfOutput(quad.NewCopyOutputRequest(func(r quad.CopyResult) { results = append(results, r) }))
	assert.True(t, child.HasCopyRequest())
	child.RemoveFromParent()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsEmpty())

	detached := New()
	detached.RequestCopyOfOutput(quad.NewCopyOutputRequest(func(r quad.CopyResult) { results = append(results, r) }))
	assert.Len(t, results, 2)
	assert.False(t, detached.HasCopyRequest())
}

func TestChildOrdering(t *testing.T) {
	p := New()
	a, b, c := New(), New(), New()
	p.AddChild(a)
	p.AddChild(c)
	p.InsertChild(b, 1)
	assert.Equal(t, []*Layer{a, b, c}, p.Children())

	d := New()
	p.ReplaceChild(b, d)
	assert.Equal(t, []*Layer{a, d, c}, p.Children())
	assert.Nil(t, b.Parent())

	p.InsertChild(a, 99)
	assert.Equal(t, []*Layer{d, c, a}, p.Children())

	p.RemoveAllChildren()
	assert.Empty(t, p.Children())
	assert.True(t, slices.IndexFunc([]*Layer{a, c, d}, func(l *Layer) bool { return l.Parent() != nil }) < 0)
}
