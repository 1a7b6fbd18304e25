package property

import (
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// PropertyTrees is the set of trees committed with one layer tree.
type PropertyTrees struct {
	Transform Tree[TransformNode]
	Effect    Tree[EffectNode]
	Clip      Tree[ClipNode]
	Scroll    Tree[ScrollNode]

	// SequenceNumber changes every time the trees are rebuilt.
	SequenceNumber int

	// NeedsRebuild asks the producer to rebuild the trees from the layer
	// tree on the next update.
	NeedsRebuild bool

	// SourceFrameNumber is the commit the trees were built for.
	SourceFrameNumber int

	// FullTreeDamaged forces full damage on the next draw.
	FullTreeDamaged bool

	transformByElement map[ElementID]int
	effectByElement    map[ElementID]int
	scrollByElement    map[ElementID]int
}

// New returns empty trees that need a rebuild.
func New() *PropertyTrees {
	return &PropertyTrees{
		NeedsRebuild:       true,
		transformByElement: make(map[ElementID]int),
		effectByElement:    make(map[ElementID]int),
		scrollByElement:    make(map[ElementID]int),
	}
}

// Clear empties every tree and bumps the sequence number.
func (p *PropertyTrees) Clear() {
	p.Transform.Clear()
	p.Effect.Clear()
	p.Clip.Clear()
	p.Scroll.Clear()
	clear(p.transformByElement)
	clear(p.effectByElement)
	clear(p.scrollByElement)
	p.SequenceNumber++
	p.NeedsRebuild = false
}

// InsertTransform adds a transform node and indexes it by element.
func (p *PropertyTrees) InsertTransform(n TransformNode, parentID int) int {
	id := p.Transform.Insert(n, parentID)
	p.transformByElement[n.ElementID] = id
	return id
}

// InsertEffect adds an effect node and indexes it by element.
func (p *PropertyTrees) InsertEffect(n EffectNode, parentID int) int {
	id := p.Effect.Insert(n, parentID)
	p.effectByElement[n.ElementID] = id
	return id
}

// InsertClip adds a clip node.
func (p *PropertyTrees) InsertClip(n ClipNode, parentID int) int {
	return p.Clip.Insert(n, parentID)
}

// InsertScroll adds a scroll node and indexes it by element.
func (p *PropertyTrees) InsertScroll(n ScrollNode, parentID int) int {
	id := p.Scroll.Insert(n, parentID)
	p.scrollByElement[n.ElementID] = id
	return id
}

// TransformIDForElement returns the transform node of an element.
func (p *PropertyTrees) TransformIDForElement(el ElementID) (int, bool) {
	id, ok := p.transformByElement[el]
	return id, ok
}

// EffectIDForElement returns the effect node of an element.
func (p *PropertyTrees) EffectIDForElement(el ElementID) (int, bool) {
	id, ok := p.effectByElement[el]
	return id, ok
}

// ScrollIDForElement returns the scroll node of an element.
func (p *PropertyTrees) ScrollIDForElement(el ElementID) (int, bool) {
	id, ok := p.scrollByElement[el]
	return id, ok
}

// Clone returns an independent copy. A copy is pushed to each impl tree
// so that impl-side animation of one tree never leaks into another.
func (p *PropertyTrees) Clone() *PropertyTrees {
	c := &PropertyTrees{
		Transform:          p.Transform.clone(),
		Effect:             p.Effect.clone(),
		Clip:               p.Clip.clone(),
		Scroll:             p.Scroll.clone(),
		SequenceNumber:     p.SequenceNumber,
		NeedsRebuild:       p.NeedsRebuild,
		SourceFrameNumber:  p.SourceFrameNumber,
		FullTreeDamaged:    p.FullTreeDamaged,
		transformByElement: make(map[ElementID]int, len(p.transformByElement)),
		effectByElement:    make(map[ElementID]int, len(p.effectByElement)),
		scrollByElement:    make(map[ElementID]int, len(p.scrollByElement)),
	}
	for k, v := range p.transformByElement {
		c.transformByElement[k] = v
	}
	for k, v := range p.effectByElement {
		c.effectByElement[k] = v
	}
	for k, v := range p.scrollByElement {
		c.scrollByElement[k] = v
	}
	return c
}

// ResetAllChangeTracking clears every Changed flag. Called once the
// current state has been drawn.
func (p *PropertyTrees) ResetAllChangeTracking() {
	p.Transform.each(func(_ int, n *TransformNode) {
		n.Changed = false
		n.AncestorMoved = false
	})
	p.Effect.each(func(_ int, n *EffectNode) { n.Changed = false })
	p.Clip.each(func(_ int, n *ClipNode) { n.Changed = false })
	p.FullTreeDamaged = false
}

// AnyChanged reports whether a node changed since the last reset.
func (p *PropertyTrees) AnyChanged() bool {
	changed := p.FullTreeDamaged
	p.Transform.each(func(_ int, n *TransformNode) { changed = changed || n.Changed })
	p.Effect.each(func(_ int, n *EffectNode) { changed = changed || n.Changed })
	p.Clip.each(func(_ int, n *ClipNode) { changed = changed || n.Changed })
	return changed
}

// UpdateScreenSpace recomputes the cached screen-space values of every
// node. viewport bounds the root clip.
func (p *PropertyTrees) UpdateScreenSpace(viewport geom.Rect) {
	p.Transform.each(func(id int, n *TransformNode) {
		parent := p.Transform.Parent(id)
		if parent == nil {
			n.ToScreen = n.ToParent()
			n.AncestorMoved = n.Changed
			return
		}
		n.ToScreen = parent.ToScreen.Multiply(n.ToParent())
		n.AncestorMoved = n.Changed || parent.AncestorMoved
	})
	p.Effect.each(func(id int, n *EffectNode) {
		parent := p.Effect.Parent(id)
		if parent == nil {
			n.ScreenSpaceOpacity = n.Opacity
			n.SubtreeHidden = n.HiddenByBackfaceOrHide
			n.TargetID = id
			return
		}
		n.ScreenSpaceOpacity = parent.ScreenSpaceOpacity * n.Opacity
		n.SubtreeHidden = parent.SubtreeHidden || n.HiddenByBackfaceOrHide
		if n.HasRenderSurface {
			n.TargetID = id
		} else {
			n.TargetID = parent.TargetID
		}
	})
	p.Clip.each(func(id int, n *ClipNode) {
		screen := viewport
		if t := p.Transform.Node(n.TransformID); t != nil && !n.ClipRect.IsEmpty() {
			screen = t.ToScreen.MapRect(n.ClipRect)
		}
		if parent := p.Clip.Parent(id); parent != nil {
			screen = screen.Intersect(parent.ScreenClip)
		} else {
			screen = screen.Intersect(viewport)
		}
		n.ScreenClip = screen
	})
}

// OnOpacityAnimated applies an impl-side opacity animation tick to the
// effect node of el. at is the source frame number of the tree being
// animated. It reports whether el has an effect node.
func (p *PropertyTrees) OnOpacityAnimated(el ElementID, opacity float64, at int) bool {
	id, ok := p.effectByElement[el]
	if !ok {
		return false
	}
	n := p.Effect.Node(id)
	if n.Opacity != opacity {
		n.Changed = true
	}
	n.Opacity = opacity
	n.Animating = true
	n.ImplAnimatedAt = at
	return true
}

// OnTransformAnimated applies an impl-side transform animation tick.
func (p *PropertyTrees) OnTransformAnimated(el ElementID, t geom.Transform, at int) bool {
	id, ok := p.transformByElement[el]
	if !ok {
		return false
	}
	n := p.Transform.Node(id)
	if n.Local != t {
		n.Changed = true
	}
	n.Local = t
	n.Animating = true
	n.ImplAnimatedAt = at
	return true
}

// OnFilterAnimated applies an impl-side filter animation tick.
func (p *PropertyTrees) OnFilterAnimated(el ElementID, filters []quad.Filter, at int) bool {
	id, ok := p.effectByElement[el]
	if !ok {
		return false
	}
	n := p.Effect.Node(id)
	if !filtersEqual(n.Filters, filters) {
		n.Changed = true
	}
	n.Filters = filters
	n.Animating = true
	n.FilterAnimatedAt = at
	return true
}

// OnScrollOffsetAnimated scrolls the scroll node of el on the impl side.
// The offset is clamped to the scrollable range.
func (p *PropertyTrees) OnScrollOffsetAnimated(el ElementID, offset geom.Point, at int) bool {
	id, ok := p.scrollByElement[el]
	if !ok {
		return false
	}
	n := p.Scroll.Node(id)
	n.ScrollOffset = n.ClampScrollOffset(offset)
	n.ImplAnimatedAt = at
	if t := p.Transform.Node(n.TransformID); t != nil && t.ScrollOffset != n.ScrollOffset {
		t.ScrollOffset = n.ScrollOffset
		t.Changed = true
	}
	return true
}

// PreserveImplValues carries impl-side animated values from the trees of
// the previous active tree (from) into these freshly committed trees.
//
// A value animated on the impl side survives the commit unless the
// producer set the same property in a commit newer than the tree the
// animation was applied to.
func (p *PropertyTrees) PreserveImplValues(from *PropertyTrees) {
	if from == nil {
		return
	}
	from.Transform.each(func(_ int, src *TransformNode) {
		if src.ImplAnimatedAt == notAnimated {
			return
		}
		id, ok := p.transformByElement[src.ElementID]
		if !ok {
			return
		}
		dst := p.Transform.Node(id)
		if dst.ValueStamp > src.ImplAnimatedAt {
			return
		}
		if dst.Local != src.Local {
			dst.Changed = true
		}
		dst.Local = src.Local
		dst.Animating = src.Animating
		dst.ImplAnimatedAt = src.ImplAnimatedAt
	})
	from.Effect.each(func(_ int, src *EffectNode) {
		if src.ImplAnimatedAt == notAnimated && src.FilterAnimatedAt == notAnimated {
			return
		}
		id, ok := p.effectByElement[src.ElementID]
		if !ok {
			return
		}
		dst := p.Effect.Node(id)
		if src.ImplAnimatedAt != notAnimated && dst.ValueStamp <= src.ImplAnimatedAt {
			if dst.Opacity != src.Opacity {
				dst.Changed = true
			}
			dst.Opacity = src.Opacity
			dst.Animating = src.Animating
			dst.ImplAnimatedAt = src.ImplAnimatedAt
		}
		if src.FilterAnimatedAt != notAnimated && dst.FilterStamp <= src.FilterAnimatedAt {
			if !filtersEqual(dst.Filters, src.Filters) {
				dst.Changed = true
			}
			dst.Filters = src.Filters
			dst.Animating = src.Animating
			dst.FilterAnimatedAt = src.FilterAnimatedAt
		}
	})
	from.Scroll.each(func(_ int, src *ScrollNode) {
		if src.ImplAnimatedAt == notAnimated {
			return
		}
		id, ok := p.scrollByElement[src.ElementID]
		if !ok {
			return
		}
		dst := p.Scroll.Node(id)
		if dst.ValueStamp > src.ImplAnimatedAt {
			return
		}
		dst.ScrollOffset = dst.ClampScrollOffset(src.ScrollOffset)
		dst.ImplAnimatedAt = src.ImplAnimatedAt
		if t := p.Transform.Node(dst.TransformID); t != nil && t.ScrollOffset != dst.ScrollOffset {
			t.ScrollOffset = dst.ScrollOffset
			t.Changed = true
		}
	})
}

// MarkChangedAgainst sets Changed on every node whose producer-set value
// differs from the node of the same element in prev. Nodes of elements new
// in this commit are marked changed. Used after a rebuild so that change
// tracking survives a new tree identity.
func (p *PropertyTrees) MarkChangedAgainst(prev *PropertyTrees) {
	if prev == nil {
		p.FullTreeDamaged = true
		return
	}
	p.Transform.each(func(_ int, n *TransformNode) {
		id, ok := prev.transformByElement[n.ElementID]
		if !ok {
			n.Changed = true
			return
		}
		o := prev.Transform.Node(id)
		if o.Local != n.Local || o.PostLocalOffset != n.PostLocalOffset || o.ScrollOffset != n.ScrollOffset || o.Changed {
			n.Changed = true
		}
	})
	p.Effect.each(func(_ int, n *EffectNode) {
		id, ok := prev.effectByElement[n.ElementID]
		if !ok {
			n.Changed = true
			return
		}
		o := prev.Effect.Node(id)
		if o.Opacity != n.Opacity || !filtersEqual(o.Filters, n.Filters) || o.MaskLayerID != n.MaskLayerID ||
			o.HiddenByBackfaceOrHide != n.HiddenByBackfaceOrHide || o.HasRenderSurface != n.HasRenderSurface || o.Changed {
			n.Changed = true
		}
	})
	p.FullTreeDamaged = p.FullTreeDamaged || prev.FullTreeDamaged
}
