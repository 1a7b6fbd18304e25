package layer

import (
	"slices"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/impl"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
)

var lastLayerID atomic.Int64

func nextLayerID() int {
	return int(lastLayerID.Add(1))
}

// kind is the kind-specific part of a Layer.
type kind interface {
	// newContent returns the impl content mirroring this kind.
	newContent(h *impl.LayerTreeHostImpl) impl.Content

	// pushContent copies kind state into the impl content.
	pushContent(dst impl.Content)

	// update runs once per main frame before the commit and reports
	// whether the layer has new content to commit.
	update() bool

	// drawsContent reports whether the kind has anything to draw.
	drawsContent() bool
}

// Layer is a node of the producer-side layer tree. It lives on the main
// goroutine; a commit mirrors it into a LayerImpl of the same ID on the
// impl side.
//
// A Layer belongs to at most one parent. Mask and replica layers are
// owned by the layer they are attached to.
type Layer struct {
	id   int
	host *LayerTreeHost
	kind kind

	parent   *Layer
	children []*Layer
	mask     *Layer
	replica  *Layer

	bounds             geom.Size
	position           geom.Point
	transform          geom.Transform
	opacity            float64
	filters            []quad.Filter
	blendMode          quad.BlendMode
	isDrawable         bool
	hidden             bool
	masksToBounds      bool
	contentsOpaque     bool
	backgroundColor    gputypes.Color
	scrollable         bool
	scrollContainer    geom.Size
	scrollOffset       geom.Point
	forceRenderSurface bool
	debugName          string

	// Source frame numbers of the commits in which the producer last set
	// each animatable property.
	transformStamp int
	opacityStamp   int
	filterStamp    int
	scrollStamp    int

	// paintedFrame is the source frame number of the last update that
	// produced new content.
	paintedFrame int

	updateRect   geom.Rect
	copyRequests []*quad.CopyOutputRequest

	needsPush             bool
	persistNeedsPush      bool
	numDependentsNeedPush int

	transformIndex int
	effectIndex    int
	clipIndex      int
	scrollIndex    int
}

// New returns a container layer that draws nothing by itself.
func New() *Layer {
	return newLayer(nil)
}

func newLayer(k kind) *Layer {
	return &Layer{
		id:             nextLayerID(),
		kind:           k,
		transform:      geom.Identity(),
		opacity:        1,
		paintedFrame:   -1,
		transformIndex: property.InvalidNodeID,
		effectIndex:    property.InvalidNodeID,
		clipIndex:      property.InvalidNodeID,
		scrollIndex:    property.InvalidNodeID,
	}
}

// ID returns the layer id. It identifies the layer's LayerImpl in every
// impl tree.
func (l *Layer) ID() int { return l.id }

// LayerTreeHost returns the host of the tree the layer is in, or nil.
func (l *Layer) LayerTreeHost() *LayerTreeHost { return l.host }

// Parent returns the parent layer, or nil. For mask and replica layers it
// is the layer they are attached to.
func (l *Layer) Parent() *Layer { return l.parent }

// Children returns the children in paint order.
func (l *Layer) Children() []*Layer { return l.children }

// AddChild appends child, removing it from its previous parent first.
func (l *Layer) AddChild(child *Layer) {
	l.InsertChild(child, len(l.children))
}

// InsertChild inserts child at index, clamped to the valid range.
func (l *Layer) InsertChild(child *Layer, index int) {
	child.RemoveFromParent()
	index = min(max(index, 0), len(l.children))
	l.children = slices.Insert(l.children, index, child)
	l.attach(child)
}

// ReplaceChild puts replacement where old was. It is a no-op if old is
// not a child of l.
func (l *Layer) ReplaceChild(old, replacement *Layer) {
	i := slices.Index(l.children, old)
	if i < 0 {
		return
	}
	old.RemoveFromParent()
	if replacement != nil {
		l.InsertChild(replacement, i)
	}
}

// RemoveFromParent detaches the layer and its subtree.
func (l *Layer) RemoveFromParent() {
	p := l.parent
	if p == nil {
		return
	}
	switch {
	case p.mask == l:
		p.mask = nil
	case p.replica == l:
		p.replica = nil
	default:
		p.children = slices.DeleteFunc(p.children, func(c *Layer) bool { return c == l })
	}
	p.detach(l)
}

// RemoveAllChildren detaches every child.
func (l *Layer) RemoveAllChildren() {
	for len(l.children) > 0 {
		l.children[len(l.children)-1].RemoveFromParent()
	}
}

func (l *Layer) attach(child *Layer) {
	child.parent = l
	child.setLayerTreeHost(l.host)
	if child.parentShouldKnowNeedsPush() {
		l.addDependentNeedsPush()
	}
	l.setNeedsFullTreeSync()
}

func (l *Layer) detach(child *Layer) {
	if child.parentShouldKnowNeedsPush() {
		l.removeDependentNeedsPush()
	}
	child.parent = nil
	child.setLayerTreeHost(nil)
	l.setNeedsFullTreeSync()
}

// MaskLayer returns the mask layer, or nil.
func (l *Layer) MaskLayer() *Layer { return l.mask }

// SetMaskLayer sets the layer whose alpha masks l and its subtree. The
// mask is sized to the bounds of l.
func (l *Layer) SetMaskLayer(m *Layer) {
	if l.mask == m {
		return
	}
	if l.mask != nil {
		l.mask.RemoveFromParent()
	}
	if m != nil {
		m.RemoveFromParent()
		l.mask = m
		m.SetBounds(l.bounds)
		l.attach(m)
	}
	l.SetNeedsCommit()
}

// ReplicaLayer returns the replica layer, or nil.
func (l *Layer) ReplicaLayer() *Layer { return l.replica }

// SetReplicaLayer sets a layer whose position and transform place a
// second copy of l and its subtree.
func (l *Layer) SetReplicaLayer(r *Layer) {
	if l.replica == r {
		return
	}
	if l.replica != nil {
		l.replica.RemoveFromParent()
	}
	if r != nil {
		r.RemoveFromParent()
		l.replica = r
		l.attach(r)
	}
	l.SetNeedsCommit()
}

// setLayerTreeHost moves the subtree to host h. Joining a host marks
// every layer as needing push; leaving one clears the flag of layers that
// do not persist it.
func (l *Layer) setLayerTreeHost(h *LayerTreeHost) {
	if l.host == h {
		return
	}
	if l.host != nil {
		l.host.unregisterLayer(l)
	}
	l.host = h
	if h != nil {
		h.registerLayer(l)
		l.needsPush = true
		frame := h.SourceFrameNumber()
		l.transformStamp, l.opacityStamp, l.filterStamp, l.scrollStamp = frame, frame, frame, frame
	} else {
		if !l.persistNeedsPush {
			l.needsPush = false
		}
		for _, r := range l.copyRequests {
			r.SendEmptyResult()
		}
		l.copyRequests = nil
	}
	l.forEachOwned(func(c *Layer) { c.setLayerTreeHost(h) })
	l.recomputeDependents()
}

// forEachOwned visits the children, then the mask and the replica.
func (l *Layer) forEachOwned(fn func(*Layer)) {
	for _, c := range l.children {
		fn(c)
	}
	if l.mask != nil {
		fn(l.mask)
	}
	if l.replica != nil {
		fn(l.replica)
	}
}

// SetNeedsPushProperties marks the layer for the next commit. On a
// detached layer the mark is deferred: joining a tree marks it anyway.
func (l *Layer) SetNeedsPushProperties() {
	if l.needsPush || (l.host == nil && !l.persistNeedsPush) {
		return
	}
	before := l.parentShouldKnowNeedsPush()
	l.needsPush = true
	if !before && l.parent != nil {
		l.parent.addDependentNeedsPush()
	}
}

// NeedsPushProperties reports whether the layer will push its properties
// with the next commit.
func (l *Layer) NeedsPushProperties() bool {
	return l.needsPush
}

// DescendantNeedsPushProperties reports whether a layer below l needs to
// push. A commit does not visit subtrees where this is false.
func (l *Layer) DescendantNeedsPushProperties() bool {
	return l.numDependentsNeedPush > 0
}

// SetPersistNeedsPushProperties keeps the needs-push flag set after
// commits and across removal from the tree, so the layer pushes on every
// commit.
func (l *Layer) SetPersistNeedsPushProperties(persist bool) {
	l.persistNeedsPush = persist
	if persist {
		l.SetNeedsPushProperties()
	}
}

func (l *Layer) parentShouldKnowNeedsPush() bool {
	return l.needsPush || l.numDependentsNeedPush > 0
}

func (l *Layer) addDependentNeedsPush() {
	before := l.parentShouldKnowNeedsPush()
	l.numDependentsNeedPush++
	if !before && l.parent != nil {
		l.parent.addDependentNeedsPush()
	}
}

func (l *Layer) removeDependentNeedsPush() {
	l.numDependentsNeedPush--
	if !l.parentShouldKnowNeedsPush() && l.parent != nil {
		l.parent.removeDependentNeedsPush()
	}
}

// recomputeDependents recounts the owned layers that need to push. The
// owned layers must already be consistent.
func (l *Layer) recomputeDependents() {
	n := 0
	l.forEachOwned(func(c *Layer) {
		if c.parentShouldKnowNeedsPush() {
			n++
		}
	})
	l.numDependentsNeedPush = n
}

// SetNeedsCommit marks the layer for push and asks the host for a commit.
func (l *Layer) SetNeedsCommit() {
	l.SetNeedsPushProperties()
	if l.host != nil {
		l.host.SetNeedsCommit()
	}
}

func (l *Layer) setNeedsFullTreeSync() {
	if l.host != nil {
		l.host.SetNeedsFullTreeSync()
	}
}

func (l *Layer) frame() int {
	if l.host == nil {
		return 0
	}
	return l.host.SourceFrameNumber()
}

// Bounds returns the layer size.
func (l *Layer) Bounds() geom.Size { return l.bounds }

// SetBounds sets the layer size. A mask layer follows the bounds of its
// owner.
func (l *Layer) SetBounds(s geom.Size) {
	if l.bounds == s {
		return
	}
	l.bounds = s
	if l.mask != nil {
		l.mask.SetBounds(s)
	}
	if l.kind != nil {
		l.SetNeedsDisplay()
	}
	l.SetNeedsCommit()
}

// Position returns the offset of the layer in its parent.
func (l *Layer) Position() geom.Point { return l.position }

// SetPosition sets the offset of the layer in its parent.
func (l *Layer) SetPosition(p geom.Point) {
	if l.position == p {
		return
	}
	l.position = p
	l.transformStamp = l.frame()
	l.SetNeedsCommit()
}

// Transform returns the layer transform, applied after the position.
func (l *Layer) Transform() geom.Transform { return l.transform }

// SetTransform sets the layer transform.
func (l *Layer) SetTransform(t geom.Transform) {
	if l.transform == t {
		return
	}
	l.transform = t
	l.transformStamp = l.frame()
	l.SetNeedsCommit()
}

// Opacity returns the layer opacity.
func (l *Layer) Opacity() float64 { return l.opacity }

// SetOpacity sets the opacity of the layer and its subtree.
func (l *Layer) SetOpacity(o float64) {
	o = min(max(o, 0), 1)
	if l.opacity == o {
		return
	}
	l.opacity = o
	l.opacityStamp = l.frame()
	l.SetNeedsCommit()
}

// Filters returns the filter chain.
func (l *Layer) Filters() []quad.Filter { return l.filters }

// SetFilters sets the filters applied to the layer and its subtree.
func (l *Layer) SetFilters(f []quad.Filter) {
	if slices.Equal(l.filters, f) {
		return
	}
	l.filters = slices.Clone(f)
	l.filterStamp = l.frame()
	l.SetNeedsCommit()
}

// BlendMode returns the blend mode.
func (l *Layer) BlendMode() quad.BlendMode { return l.blendMode }

// SetBlendMode sets how the layer blends with what is behind it.
func (l *Layer) SetBlendMode(m quad.BlendMode) {
	if l.blendMode == m {
		return
	}
	l.blendMode = m
	l.SetNeedsCommit()
}

// IsDrawable reports whether the layer may draw its content.
func (l *Layer) IsDrawable() bool { return l.isDrawable }

// SetIsDrawable allows or forbids drawing the layer's own content.
func (l *Layer) SetIsDrawable(v bool) {
	if l.isDrawable == v {
		return
	}
	l.isDrawable = v
	l.SetNeedsCommit()
}

// DrawsContent reports whether the layer is drawable and has content.
func (l *Layer) DrawsContent() bool {
	return l.isDrawable && l.kind != nil && l.kind.drawsContent()
}

// HideLayerAndSubtree reports whether the subtree is hidden.
func (l *Layer) HideLayerAndSubtree() bool { return l.hidden }

// SetHideLayerAndSubtree hides or shows the layer and its subtree.
func (l *Layer) SetHideLayerAndSubtree(v bool) {
	if l.hidden == v {
		return
	}
	l.hidden = v
	l.SetNeedsCommit()
}

// MasksToBounds reports whether the subtree is clipped to the bounds.
func (l *Layer) MasksToBounds() bool { return l.masksToBounds }

// SetMasksToBounds clips the descendants of l to its bounds.
func (l *Layer) SetMasksToBounds(v bool) {
	if l.masksToBounds == v {
		return
	}
	l.masksToBounds = v
	l.SetNeedsCommit()
}

// ContentsOpaque reports whether the content covers the bounds opaquely.
func (l *Layer) ContentsOpaque() bool { return l.contentsOpaque }

// SetContentsOpaque declares the content fully opaque.
func (l *Layer) SetContentsOpaque(v bool) {
	if l.contentsOpaque == v {
		return
	}
	l.contentsOpaque = v
	l.SetNeedsCommit()
}

// BackgroundColor returns the background color.
func (l *Layer) BackgroundColor() gputypes.Color { return l.backgroundColor }

// SetBackgroundColor sets the background color.
func (l *Layer) SetBackgroundColor(c gputypes.Color) {
	if l.backgroundColor == c {
		return
	}
	l.backgroundColor = c
	l.SetNeedsCommit()
}

// SetScrollable makes the layer scroll inside a container of the given
// size, usually the bounds of its parent.
func (l *Layer) SetScrollable(container geom.Size) {
	if l.scrollable && l.scrollContainer == container {
		return
	}
	l.scrollable = true
	l.scrollContainer = container
	l.SetNeedsCommit()
}

// Scrollable reports whether the layer scrolls.
func (l *Layer) Scrollable() bool { return l.scrollable }

// ScrollOffset returns the scroll offset.
func (l *Layer) ScrollOffset() geom.Point { return l.scrollOffset }

// SetScrollOffset scrolls the layer.
func (l *Layer) SetScrollOffset(p geom.Point) {
	if l.scrollOffset == p {
		return
	}
	l.scrollOffset = p
	l.scrollStamp = l.frame()
	l.SetNeedsCommit()
}

// SetForceRenderSurface draws the subtree into its own render pass.
func (l *Layer) SetForceRenderSurface(v bool) {
	if l.forceRenderSurface == v {
		return
	}
	l.forceRenderSurface = v
	l.SetNeedsCommit()
}

// DebugName returns the name shown in debug output.
func (l *Layer) DebugName() string { return l.debugName }

// SetDebugName sets the name shown in debug output.
func (l *Layer) SetDebugName(name string) {
	l.debugName = name
	l.SetNeedsPushProperties()
}

// SetNeedsDisplay invalidates the whole layer.
func (l *Layer) SetNeedsDisplay() {
	l.SetNeedsDisplayRect(geom.RectFromSize(l.bounds))
}

// SetNeedsDisplayRect invalidates r, in layer space. The content is
// updated on the next main frame and r is damaged on screen.
func (l *Layer) SetNeedsDisplayRect(r geom.Rect) {
	r = r.Intersect(geom.RectFromSize(l.bounds))
	if r.IsEmpty() {
		return
	}
	l.updateRect = l.updateRect.Union(r)
	if inv, ok := l.kind.(invalidator); ok {
		inv.invalidate(r)
	}
	l.SetNeedsPushProperties()
	if l.host != nil {
		l.host.SetNeedsUpdateLayers()
	}
}

// invalidator is implemented by kinds that repaint invalidated areas.
type invalidator interface {
	invalidate(r geom.Rect)
}

// UpdateRect returns the area invalidated since the last commit.
func (l *Layer) UpdateRect() geom.Rect { return l.updateRect }

// RequestCopyOfOutput asks for the pixels of the layer and its subtree
// as drawn in the next frame. The layer gets its own render surface.
func (l *Layer) RequestCopyOfOutput(r *quad.CopyOutputRequest) {
	if l.host == nil {
		r.SendEmptyResult()
		return
	}
	l.copyRequests = append(l.copyRequests, r)
	l.SetNeedsCommit()
}

// HasCopyRequest reports whether copy requests wait for the next commit.
func (l *Layer) HasCopyRequest() bool { return len(l.copyRequests) > 0 }

// SourceFrameNumber returns the commit number of the last update that
// produced new content, or -1.
func (l *Layer) SourceFrameNumber() int { return l.paintedFrame }

// PropertyTreeIndices returns the transform, effect, clip and scroll
// nodes assigned by the last property tree build.
func (l *Layer) PropertyTreeIndices() (transform, effect, clip, scroll int) {
	return l.transformIndex, l.effectIndex, l.clipIndex, l.scrollIndex
}

func (l *Layer) update() bool {
	if l.kind == nil || !l.kind.update() {
		return false
	}
	l.paintedFrame = l.frame()
	l.SetNeedsPushProperties()
	return true
}

func (l *Layer) newContentFunc(h *impl.LayerTreeHostImpl) func() impl.Content {
	if l.kind == nil {
		return nil
	}
	return func() impl.Content { return l.kind.newContent(h) }
}

// pushPropertiesTo copies the layer into its impl mirror.
func (l *Layer) pushPropertiesTo(li *impl.LayerImpl) {
	li.SetBounds(l.bounds)
	li.SetPosition(l.position)
	li.SetTransform(l.transform)
	li.SetOpacity(l.opacity)
	li.SetFilters(l.filters)
	li.SetBlendMode(l.blendMode)
	li.SetDrawsContent(l.DrawsContent())
	li.SetHideLayerAndSubtree(l.hidden)
	li.SetMasksToBounds(l.masksToBounds)
	li.SetContentsOpaque(l.contentsOpaque)
	li.SetBackgroundColor(l.backgroundColor)
	li.SetScrollOffset(l.scrollOffset)
	li.SetDebugName(l.debugName)
	if !l.updateRect.IsEmpty() {
		li.AddUpdateRect(l.updateRect)
		l.updateRect = geom.Rect{}
	}
	if len(l.copyRequests) > 0 {
		li.PassCopyRequests(l.copyRequests)
		l.copyRequests = nil
	}
	if l.kind != nil {
		l.kind.pushContent(li.Content())
	}
}
