package impl

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/cc/swappromise"
)

// TreeKind tells which slot of the host a tree occupies.
type TreeKind uint8

// Tree kinds.
const (
	PendingTree TreeKind = iota + 1
	ActiveTree
	RecycleTree
)

// String returns the kind name.
func (k TreeKind) String() string {
	switch k {
	case PendingTree:
		return "pending"
	case ActiveTree:
		return "active"
	case RecycleTree:
		return "recycle"
	default:
		return "unknown"
	}
}

// LayerTreeImpl is one generation of LayerImpls together with the
// property trees and frame state committed with it.
type LayerTreeImpl struct {
	host *LayerTreeHostImpl
	kind TreeKind

	layers map[int]*LayerImpl
	root   *LayerImpl

	propertyTrees *property.PropertyTrees

	viewportSize       geom.Size
	deviceScaleFactor  float64
	pageScaleFactor    float64
	minPageScaleFactor float64
	maxPageScaleFactor float64
	backgroundColor    gputypes.Color
	hasTouchHandlers   bool
	hasWheelHandlers   bool
	sourceFrameNumber  int

	swapPromises       swappromise.List
	pinnedSwapPromises swappromise.List

	// pushedIDs holds the layers that received properties in the commit
	// that produced this tree.
	pushedIDs map[int]struct{}

	// touched collects the layers reached by the current synchronization.
	touched map[int]struct{}

	needsUpdateDrawProperties bool
	drawLayers                []*LayerImpl
	surfaces                  []*renderSurface
}

func newLayerTreeImpl(host *LayerTreeHostImpl, kind TreeKind) *LayerTreeImpl {
	return &LayerTreeImpl{
		host:               host,
		kind:               kind,
		layers:             make(map[int]*LayerImpl),
		propertyTrees:      property.New(),
		deviceScaleFactor:  1,
		pageScaleFactor:    1,
		minPageScaleFactor: 1,
		maxPageScaleFactor: 1,
		sourceFrameNumber:  -1,
		pushedIDs:          make(map[int]struct{}),
	}
}

// Host returns the host owning the tree.
func (t *LayerTreeImpl) Host() *LayerTreeHostImpl { return t.host }

// Kind returns the slot of the tree.
func (t *LayerTreeImpl) Kind() TreeKind { return t.kind }

// IsActiveTree reports whether the tree is drawn.
func (t *LayerTreeImpl) IsActiveTree() bool { return t.kind == ActiveTree }

// IsPendingTree reports whether the tree waits for activation.
func (t *LayerTreeImpl) IsPendingTree() bool { return t.kind == PendingTree }

// ResourceProvider returns the provider of the host.
func (t *LayerTreeImpl) ResourceProvider() *resource.Provider { return t.host.provider }

// TileSize returns the raster tile size of the host.
func (t *LayerTreeImpl) TileSize() int { return t.host.settings.TileSize }

// Root returns the root layer, or nil.
func (t *LayerTreeImpl) Root() *LayerImpl { return t.root }

// LayerByID returns the layer with the given id, or nil.
func (t *LayerTreeImpl) LayerByID(id int) *LayerImpl { return t.layers[id] }

// NumLayers returns the number of layers, masks and replicas included.
func (t *LayerTreeImpl) NumLayers() int { return len(t.layers) }

// BeginSync starts a structural synchronization. Layers not reached with
// GetOrCreateLayer before FinishSync are released.
func (t *LayerTreeImpl) BeginSync() {
	t.touched = make(map[int]struct{}, len(t.layers))
	clear(t.pushedIDs)
	for _, l := range t.layers {
		l.created = false
	}
}

// GetOrCreateLayer returns the layer with id, creating it with the content
// returned by newContent when the tree has none.
func (t *LayerTreeImpl) GetOrCreateLayer(id int, newContent func() Content) *LayerImpl {
	if t.touched != nil {
		t.touched[id] = struct{}{}
	}
	if l, ok := t.layers[id]; ok {
		return l
	}
	var c Content
	if newContent != nil {
		c = newContent()
	}
	l := newLayerImpl(t, id, c)
	if active := t.host.activeTree; active != nil && active != t {
		// Content shared with the active tree stays shared. The layer
		// still counts as created until pushed.
		if src := active.layers[id]; src != nil {
			l.copyStateFrom(src)
		}
	}
	t.layers[id] = l
	return l
}

// SetRoot sets the root layer.
func (t *LayerTreeImpl) SetRoot(root *LayerImpl) {
	if t.root != root {
		t.propertyTrees.FullTreeDamaged = true
	}
	t.root = root
	t.setNeedsUpdateDrawProperties()
}

// FinishSync releases the layers the synchronization did not reach.
func (t *LayerTreeImpl) FinishSync() {
	for id, l := range t.layers {
		if _, ok := t.touched[id]; !ok {
			l.release()
			delete(t.layers, id)
		}
	}
	t.touched = nil
	t.setNeedsUpdateDrawProperties()
}

// CreatedLayers reports whether the last synchronization created layers.
func (t *LayerTreeImpl) CreatedLayers() bool {
	for _, l := range t.layers {
		if l.created {
			return true
		}
	}
	return false
}

// NotePushed records that the layer with id received properties in the
// current commit.
func (t *LayerTreeImpl) NotePushed(id int) {
	t.pushedIDs[id] = struct{}{}
	if l := t.layers[id]; l != nil {
		l.created = false
	}
}

// PushedLayerIDs returns the ids pushed by the commit that produced the
// tree.
func (t *LayerTreeImpl) PushedLayerIDs() []int {
	ids := make([]int, 0, len(t.pushedIDs))
	for id := range t.pushedIDs {
		ids = append(ids, id)
	}
	return ids
}

// catchUpFrom copies into t the layers src received in its commit. t
// missed that commit while it sat in the recycle slot.
func (t *LayerTreeImpl) catchUpFrom(src *LayerTreeImpl) {
	if src == nil {
		return
	}
	for id := range src.pushedIDs {
		from, to := src.layers[id], t.layers[id]
		if from == nil || to == nil {
			continue
		}
		to.copyStateFrom(from)
		to.created = false
	}
}

// PropertyTrees returns the property trees of the tree.
func (t *LayerTreeImpl) PropertyTrees() *property.PropertyTrees { return t.propertyTrees }

// SetPropertyTrees installs trees committed by the producer.
func (t *LayerTreeImpl) SetPropertyTrees(p *property.PropertyTrees) {
	t.propertyTrees = p
	t.setNeedsUpdateDrawProperties()
}

// ViewportSize returns the viewport in device pixels.
func (t *LayerTreeImpl) ViewportSize() geom.Size { return t.viewportSize }

// SetViewportSize sets the viewport in device pixels.
func (t *LayerTreeImpl) SetViewportSize(s geom.Size) {
	t.viewportSize = s
	t.setNeedsUpdateDrawProperties()
}

// DeviceScaleFactor returns the device scale factor.
func (t *LayerTreeImpl) DeviceScaleFactor() float64 { return t.deviceScaleFactor }

// SetDeviceScaleFactor sets the device scale factor.
func (t *LayerTreeImpl) SetDeviceScaleFactor(s float64) {
	if s <= 0 {
		s = 1
	}
	t.deviceScaleFactor = s
	t.setNeedsUpdateDrawProperties()
}

// PageScaleFactor returns the page scale factor.
func (t *LayerTreeImpl) PageScaleFactor() float64 { return t.pageScaleFactor }

// PageScaleLimits returns the minimum and maximum page scale.
func (t *LayerTreeImpl) PageScaleLimits() (float64, float64) {
	return t.minPageScaleFactor, t.maxPageScaleFactor
}

// SetPageScaleFactorAndLimits sets the page scale, clamped to the limits.
func (t *LayerTreeImpl) SetPageScaleFactorAndLimits(scale, minScale, maxScale float64) {
	if minScale <= 0 {
		minScale = 1
	}
	if maxScale < minScale {
		maxScale = minScale
	}
	t.minPageScaleFactor, t.maxPageScaleFactor = minScale, maxScale
	t.pageScaleFactor = min(max(scale, minScale), maxScale)
}

// BackgroundColor returns the root background color.
func (t *LayerTreeImpl) BackgroundColor() gputypes.Color { return t.backgroundColor }

// SetBackgroundColor sets the root background color.
func (t *LayerTreeImpl) SetBackgroundColor(c gputypes.Color) { t.backgroundColor = c }

// SetEventListenerFlags records which input handlers the page has.
func (t *LayerTreeImpl) SetEventListenerFlags(touch, wheel bool) {
	t.hasTouchHandlers, t.hasWheelHandlers = touch, wheel
}

// SourceFrameNumber returns the commit the tree was built from, or -1.
func (t *LayerTreeImpl) SourceFrameNumber() int { return t.sourceFrameNumber }

// SetSourceFrameNumber sets the commit number.
func (t *LayerTreeImpl) SetSourceFrameNumber(n int) { t.sourceFrameNumber = n }

// QueueSwapPromises moves promises committed with the tree into it.
func (t *LayerTreeImpl) QueueSwapPromises(l *swappromise.List) {
	t.swapPromises.TakeFrom(l)
}

// QueuePinnedSwapPromise attaches p to this tree directly. It swaps with
// the next frame drawn from this tree and fails with SwapFails if
// another tree activates first. A promise pinned to the active tree is
// activated at once.
func (t *LayerTreeImpl) QueuePinnedSwapPromise(p swappromise.SwapPromise) {
	t.pinnedSwapPromises.Queue(p)
	if t.kind == ActiveTree {
		t.pinnedSwapPromises.Activate()
	}
}

// SwapPromiseCount returns the number of queued promises, pinned included.
func (t *LayerTreeImpl) SwapPromiseCount() int {
	return t.swapPromises.Len() + t.pinnedSwapPromises.Len()
}

// BreakSwapPromises resolves every promise of the tree with reason.
func (t *LayerTreeImpl) BreakSwapPromises(reason swappromise.DidNotSwapReason) {
	t.swapPromises.Break(reason)
	t.pinnedSwapPromises.Break(reason)
}

func (t *LayerTreeImpl) setNeedsUpdateDrawProperties() {
	t.needsUpdateDrawProperties = true
}

// ResetAllChangeTracking clears the change state of layers and property
// trees after a draw.
func (t *LayerTreeImpl) ResetAllChangeTracking() {
	for _, l := range t.layers {
		l.ResetChangeTracking()
	}
	t.propertyTrees.ResetAllChangeTracking()
}

// carryChangesFrom keeps the undrawn changes of prev, the tree this one
// replaces as the active tree.
func (t *LayerTreeImpl) carryChangesFrom(prev *LayerTreeImpl) {
	if prev == nil {
		t.propertyTrees.FullTreeDamaged = true
		return
	}
	t.carryPropertyChangesFrom(prev.propertyTrees)
	for id, l := range t.layers {
		o := prev.layers[id]
		if o == nil {
			continue
		}
		if o.propertyChanged {
			l.propertyChanged = true
		}
		l.updateRect = l.updateRect.Union(o.updateRect)
	}
}

// carryPropertyChangesFrom keeps impl-side animated values of prev and
// marks the nodes that differ from it.
func (t *LayerTreeImpl) carryPropertyChangesFrom(prev *property.PropertyTrees) {
	if prev == t.propertyTrees {
		return
	}
	t.applyDeviceScale()
	t.propertyTrees.PreserveImplValues(prev)
	t.propertyTrees.MarkChangedAgainst(prev)
}

// applyDeviceScale sets the device transform node from the device scale
// factor of the tree.
func (t *LayerTreeImpl) applyDeviceScale() {
	if n := t.propertyTrees.Transform.Node(property.RootNodeID); n != nil {
		n.Local = geom.Scaling(t.deviceScaleFactor, t.deviceScaleFactor)
	}
}

// release frees every layer.
func (t *LayerTreeImpl) release() {
	for id, l := range t.layers {
		l.release()
		delete(t.layers, id)
	}
	t.root = nil
	t.drawLayers = nil
	t.surfaces = nil
}

// forEachLayer visits the layers reachable from the root in paint order.
// Mask and replica layers are visited after their owner.
func (t *LayerTreeImpl) forEachLayer(fn func(*LayerImpl)) {
	var walk func(l *LayerImpl)
	walk = func(l *LayerImpl) {
		fn(l)
		if l.mask != nil {
			fn(l.mask)
		}
		if l.replica != nil {
			walk(l.replica)
		}
		for _, c := range l.children {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
}
