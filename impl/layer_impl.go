package impl

import (
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
)

// LayerImpl is the consumer-side mirror of a producer layer inside one
// LayerTreeImpl. A LayerImpl is never shared between trees.
type LayerImpl struct {
	id   int
	tree *LayerTreeImpl

	parent   *LayerImpl
	children []*LayerImpl
	mask     *LayerImpl
	replica  *LayerImpl

	bounds          geom.Size
	position        geom.Point
	transform       geom.Transform
	opacity         float64
	filters         []quad.Filter
	blendMode       quad.BlendMode
	drawsContent    bool
	hidden          bool
	masksToBounds   bool
	contentsOpaque  bool
	backgroundColor gputypes.Color
	scrollOffset    geom.Point
	debugName       string

	transformIndex int
	effectIndex    int
	clipIndex      int
	scrollIndex    int

	// propertyChanged is set when a property that moves or restyles the
	// whole layer changed since the last draw.
	propertyChanged bool

	// updateRect is content damage in layer space since the last draw.
	updateRect geom.Rect

	copyRequests []*quad.CopyOutputRequest

	content Content

	// created is set for layers created by the current synchronization.
	created bool

	draw DrawProperties
}

func newLayerImpl(tree *LayerTreeImpl, id int, content Content) *LayerImpl {
	if content == nil {
		content = &NoContent{}
	}
	return &LayerImpl{
		id:             id,
		tree:           tree,
		transform:      geom.Identity(),
		opacity:        1,
		transformIndex: property.InvalidNodeID,
		effectIndex:    property.InvalidNodeID,
		clipIndex:      property.InvalidNodeID,
		scrollIndex:    property.InvalidNodeID,
		content:        content,
		created:        true,
	}
}

// ID returns the id shared with the producer layer.
func (l *LayerImpl) ID() int { return l.id }

// Tree returns the tree owning the layer.
func (l *LayerImpl) Tree() *LayerTreeImpl { return l.tree }

// Parent returns the parent layer, or nil for the root and for mask and
// replica layers.
func (l *LayerImpl) Parent() *LayerImpl { return l.parent }

// Children returns the children in paint order.
func (l *LayerImpl) Children() []*LayerImpl { return l.children }

// MaskLayer returns the mask layer, or nil.
func (l *LayerImpl) MaskLayer() *LayerImpl { return l.mask }

// ReplicaLayer returns the replica layer, or nil.
func (l *LayerImpl) ReplicaLayer() *LayerImpl { return l.replica }

// Content returns the kind-specific state of the layer.
func (l *LayerImpl) Content() Content { return l.content }

// SetChildren replaces the children of l.
func (l *LayerImpl) SetChildren(children []*LayerImpl) {
	for _, c := range l.children {
		if c.parent == l {
			c.parent = nil
		}
	}
	l.children = children
	for _, c := range children {
		c.parent = l
	}
}

// SetMaskLayer sets the mask layer.
func (l *LayerImpl) SetMaskLayer(m *LayerImpl) {
	if l.mask != m {
		l.NoteLayerPropertyChanged()
	}
	l.mask = m
}

// SetReplicaLayer sets the replica layer.
func (l *LayerImpl) SetReplicaLayer(r *LayerImpl) {
	if l.replica != r {
		l.NoteLayerPropertyChanged()
	}
	l.replica = r
}

// NoteLayerPropertyChanged marks the whole layer damaged on the next draw.
func (l *LayerImpl) NoteLayerPropertyChanged() {
	l.propertyChanged = true
	if l.tree != nil {
		l.tree.setNeedsUpdateDrawProperties()
	}
}

// LayerPropertyChanged reports whether the layer changed since the last
// draw, either directly or through its property tree nodes.
func (l *LayerImpl) LayerPropertyChanged() bool {
	if l.propertyChanged {
		return true
	}
	if l.tree == nil || l.tree.propertyTrees == nil {
		return false
	}
	pt := l.tree.propertyTrees
	if t := pt.Transform.Node(l.transformIndex); t != nil && (t.Changed || t.AncestorMoved) {
		return true
	}
	for id := l.effectIndex; id != property.InvalidNodeID; id = pt.Effect.ParentID(id) {
		if pt.Effect.Node(id).Changed {
			return true
		}
	}
	for id := l.clipIndex; id != property.InvalidNodeID; id = pt.Clip.ParentID(id) {
		if pt.Clip.Node(id).Changed {
			return true
		}
	}
	return false
}

// ResetChangeTracking clears change flags once the layer has been drawn.
func (l *LayerImpl) ResetChangeTracking() {
	l.propertyChanged = false
	l.updateRect = geom.Rect{}
}

// Bounds returns the layer size.
func (l *LayerImpl) Bounds() geom.Size { return l.bounds }

// SetBounds sets the layer size.
func (l *LayerImpl) SetBounds(s geom.Size) {
	if l.bounds == s {
		return
	}
	l.bounds = s
	l.NoteLayerPropertyChanged()
}

// Position returns the offset of the layer in its parent.
func (l *LayerImpl) Position() geom.Point { return l.position }

// SetPosition sets the offset of the layer in its parent.
func (l *LayerImpl) SetPosition(p geom.Point) {
	if l.position == p {
		return
	}
	l.position = p
	l.NoteLayerPropertyChanged()
}

// Transform returns the layer transform.
func (l *LayerImpl) Transform() geom.Transform { return l.transform }

// SetTransform sets the layer transform.
func (l *LayerImpl) SetTransform(t geom.Transform) {
	if l.transform == t {
		return
	}
	l.transform = t
	l.NoteLayerPropertyChanged()
}

// Opacity returns the layer opacity.
func (l *LayerImpl) Opacity() float64 { return l.opacity }

// SetOpacity sets the layer opacity.
func (l *LayerImpl) SetOpacity(o float64) {
	if l.opacity == o {
		return
	}
	l.opacity = o
	l.NoteLayerPropertyChanged()
}

// Filters returns the filter chain.
func (l *LayerImpl) Filters() []quad.Filter { return l.filters }

// SetFilters sets the filter chain.
func (l *LayerImpl) SetFilters(f []quad.Filter) {
	if slices.Equal(l.filters, f) {
		return
	}
	l.filters = slices.Clone(f)
	l.NoteLayerPropertyChanged()
}

// BlendMode returns the blend mode.
func (l *LayerImpl) BlendMode() quad.BlendMode { return l.blendMode }

// SetBlendMode sets the blend mode.
func (l *LayerImpl) SetBlendMode(m quad.BlendMode) {
	if l.blendMode == m {
		return
	}
	l.blendMode = m
	l.NoteLayerPropertyChanged()
}

// DrawsContent reports whether the layer emits quads.
func (l *LayerImpl) DrawsContent() bool { return l.drawsContent }

// SetDrawsContent sets whether the layer emits quads.
func (l *LayerImpl) SetDrawsContent(v bool) {
	if l.drawsContent == v {
		return
	}
	l.drawsContent = v
	l.NoteLayerPropertyChanged()
}

// HideLayerAndSubtree reports whether the subtree is hidden.
func (l *LayerImpl) HideLayerAndSubtree() bool { return l.hidden }

// SetHideLayerAndSubtree hides or shows the subtree.
func (l *LayerImpl) SetHideLayerAndSubtree(v bool) {
	if l.hidden == v {
		return
	}
	l.hidden = v
	l.NoteLayerPropertyChanged()
}

// MasksToBounds reports whether descendants are clipped to the bounds.
func (l *LayerImpl) MasksToBounds() bool { return l.masksToBounds }

// SetMasksToBounds sets whether descendants are clipped to the bounds.
func (l *LayerImpl) SetMasksToBounds(v bool) {
	if l.masksToBounds == v {
		return
	}
	l.masksToBounds = v
	l.NoteLayerPropertyChanged()
}

// ContentsOpaque reports whether the content covers the bounds opaquely.
func (l *LayerImpl) ContentsOpaque() bool { return l.contentsOpaque }

// SetContentsOpaque sets whether the content is opaque.
func (l *LayerImpl) SetContentsOpaque(v bool) {
	if l.contentsOpaque == v {
		return
	}
	l.contentsOpaque = v
	l.NoteLayerPropertyChanged()
}

// BackgroundColor returns the background color.
func (l *LayerImpl) BackgroundColor() gputypes.Color { return l.backgroundColor }

// SetBackgroundColor sets the background color.
func (l *LayerImpl) SetBackgroundColor(c gputypes.Color) {
	if l.backgroundColor == c {
		return
	}
	l.backgroundColor = c
	l.NoteLayerPropertyChanged()
}

// ScrollOffset returns the scroll offset last pushed by the producer.
func (l *LayerImpl) ScrollOffset() geom.Point { return l.scrollOffset }

// SetScrollOffset sets the scroll offset.
func (l *LayerImpl) SetScrollOffset(p geom.Point) {
	if l.scrollOffset == p {
		return
	}
	l.scrollOffset = p
	l.NoteLayerPropertyChanged()
}

// DebugName returns the name shown in logs.
func (l *LayerImpl) DebugName() string { return l.debugName }

// SetDebugName sets the name shown in logs.
func (l *LayerImpl) SetDebugName(n string) { l.debugName = n }

// SetPropertyTreeIndices sets the nodes the layer uses in each tree.
func (l *LayerImpl) SetPropertyTreeIndices(transform, effect, clip, scroll int) {
	l.transformIndex = transform
	l.effectIndex = effect
	l.clipIndex = clip
	l.scrollIndex = scroll
}

// TransformTreeIndex returns the transform node of the layer.
func (l *LayerImpl) TransformTreeIndex() int { return l.transformIndex }

// EffectTreeIndex returns the effect node of the layer.
func (l *LayerImpl) EffectTreeIndex() int { return l.effectIndex }

// ClipTreeIndex returns the clip node applying to the layer.
func (l *LayerImpl) ClipTreeIndex() int { return l.clipIndex }

// ScrollTreeIndex returns the scroll node of the layer.
func (l *LayerImpl) ScrollTreeIndex() int { return l.scrollIndex }

// UpdateRect returns the content damage in layer space.
func (l *LayerImpl) UpdateRect() geom.Rect { return l.updateRect }

// AddUpdateRect adds layer-space content damage.
func (l *LayerImpl) AddUpdateRect(r geom.Rect) {
	r = r.Intersect(geom.RectFromSize(l.bounds))
	if r.IsEmpty() {
		return
	}
	l.updateRect = l.updateRect.Union(r)
	if l.tree != nil {
		l.tree.setNeedsUpdateDrawProperties()
	}
}

// PassCopyRequests appends copy requests. They are answered when the
// layer's render surface is drawn, or aborted.
func (l *LayerImpl) PassCopyRequests(reqs []*quad.CopyOutputRequest) {
	l.copyRequests = append(l.copyRequests, reqs...)
}

// HasCopyRequest reports whether the layer has unanswered copy requests.
func (l *LayerImpl) HasCopyRequest() bool { return len(l.copyRequests) > 0 }

func (l *LayerImpl) takeCopyRequests() []*quad.CopyOutputRequest {
	reqs := l.copyRequests
	l.copyRequests = nil
	return reqs
}

func (l *LayerImpl) abortCopyRequests() {
	for _, r := range l.takeCopyRequests() {
		r.SendEmptyResult()
	}
}

// DrawProperties returns the values computed by the last
// UpdateDrawProperties of the tree.
func (l *LayerImpl) DrawProperties() DrawProperties { return l.draw }

// copyStateFrom mirrors the pushed state of src without marking changes.
// Used to catch a recycled tree up on a commit it did not receive.
func (l *LayerImpl) copyStateFrom(src *LayerImpl) {
	l.bounds = src.bounds
	l.position = src.position
	l.transform = src.transform
	l.opacity = src.opacity
	l.filters = slices.Clone(src.filters)
	l.blendMode = src.blendMode
	l.drawsContent = src.drawsContent
	l.hidden = src.hidden
	l.masksToBounds = src.masksToBounds
	l.contentsOpaque = src.contentsOpaque
	l.backgroundColor = src.backgroundColor
	l.scrollOffset = src.scrollOffset
	l.debugName = src.debugName
	l.transformIndex, l.effectIndex = src.transformIndex, src.effectIndex
	l.clipIndex, l.scrollIndex = src.clipIndex, src.scrollIndex
	src.content.PushTo(l.content)
}

// release frees the content and aborts pending copy requests. Called when
// the layer leaves its tree.
func (l *LayerImpl) release() {
	l.abortCopyRequests()
	l.content.Release()
	l.parent = nil
	l.children = nil
	l.mask = nil
	l.replica = nil
}
