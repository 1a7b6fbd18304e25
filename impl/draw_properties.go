package impl

import (
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/property"
	"github.com/gogpu/cc/quad"
)

// DrawProperties are the per-frame values computed for a layer from the
// property trees. Render surfaces are aligned with the screen, so target
// space and screen space coincide.
type DrawProperties struct {
	// ScreenSpaceTransform maps layer space to device pixels.
	ScreenSpaceTransform geom.Transform

	// Opacity is the opacity relative to the render target.
	Opacity float64

	// ClipRect is the clip in device pixels when IsClipped is set.
	ClipRect  geom.Rect
	IsClipped bool

	// VisibleLayerRect is the visible part of the layer in layer space.
	VisibleLayerRect geom.Rect

	// DrawableContentRect is the clipped bounding box of the layer on
	// screen.
	DrawableContentRect geom.Rect

	// RenderTarget is the effect node of the surface the layer draws into.
	RenderTarget int
}

// renderSurface is an effect node that draws its subtree into an
// offscreen render pass.
type renderSurface struct {
	effectID int
	owner    *LayerImpl
	parent   *renderSurface
	passID   quad.RenderPassID

	// contributions are in paint order, back to front.
	contributions []contribution

	contentRect geom.Rect
	drawOpacity float64
	clipRect    geom.Rect
	isClipped   bool
	filters     []quad.Filter
	blendMode   quad.BlendMode
	maskLayer   *LayerImpl
}

type contribution struct {
	layer   *LayerImpl
	surface *renderSurface
}

func (s *renderSurface) isRoot() bool { return s.parent == nil }

// UpdateDrawProperties recomputes draw properties, the render surface
// list and the list of drawn layers. It is a no-op when nothing changed
// since the last update.
func (t *LayerTreeImpl) UpdateDrawProperties() {
	if !t.needsUpdateDrawProperties && !t.propertyTrees.AnyChanged() && t.drawLayers != nil {
		return
	}
	t.needsUpdateDrawProperties = false
	t.drawLayers = t.drawLayers[:0]
	t.surfaces = nil
	if t.root == nil || t.propertyTrees.Effect.Size() == 0 {
		return
	}

	pt := t.propertyTrees
	t.applyDeviceScale()
	viewport := geom.RectFromSize(t.viewportSize)
	pt.UpdateScreenSpace(viewport)

	root := &renderSurface{
		effectID:    property.RootNodeID,
		owner:       t.root,
		passID:      quad.RenderPassID{},
		contentRect: viewport,
		drawOpacity: 1,
	}
	surfaces := map[int]*renderSurface{property.RootNodeID: root}
	var created []*renderSurface

	var surfaceFor func(effectID int) *renderSurface
	surfaceFor = func(effectID int) *renderSurface {
		target := pt.Effect.Node(effectID).TargetID
		if s, ok := surfaces[target]; ok {
			return s
		}
		node := pt.Effect.Node(target)
		parent := surfaceFor(pt.Effect.ParentID(target))
		s := &renderSurface{
			effectID:  target,
			owner:     t.layers[node.OwnerID],
			parent:    parent,
			passID:    quad.RenderPassID{LayerID: node.OwnerID},
			filters:   node.Filters,
			maskLayer: t.layers[node.MaskLayerID],
		}
		surfaces[target] = s
		created = append(created, s)
		parent.contributions = append(parent.contributions, contribution{surface: s})
		return s
	}

	var walk func(l *LayerImpl)
	walk = func(l *LayerImpl) {
		defer func() {
			for _, c := range l.children {
				walk(c)
			}
		}()
		eff := pt.Effect.Node(l.effectIndex)
		tn := pt.Transform.Node(l.transformIndex)
		if eff == nil || tn == nil || !eff.IsDrawn() {
			return
		}
		screen := tn.ToScreen
		inverse, ok := screen.Inverse()
		if !ok {
			return
		}
		dp := DrawProperties{
			ScreenSpaceTransform: screen,
			Opacity:              1,
			RenderTarget:         eff.TargetID,
		}
		for id := l.effectIndex; id != eff.TargetID && id != property.InvalidNodeID; id = pt.Effect.ParentID(id) {
			dp.Opacity *= pt.Effect.Node(id).Opacity
		}
		bounds := geom.RectFromSize(l.bounds)
		drawable := screen.MapRect(bounds).Intersect(viewport)
		if c := pt.Clip.Node(l.clipIndex); c != nil && l.clipIndex != property.RootNodeID {
			dp.ClipRect = c.ScreenClip
			dp.IsClipped = true
			drawable = drawable.Intersect(c.ScreenClip)
		}
		dp.DrawableContentRect = drawable
		dp.VisibleLayerRect = inverse.MapRect(drawable).Intersect(bounds)
		l.draw = dp

		s := surfaceFor(l.effectIndex)
		if s.owner == l && !s.isRoot() {
			s.blendMode = l.blendMode
		}
		if l.drawsContent && !drawable.IsEmpty() && !dp.VisibleLayerRect.IsEmpty() {
			s.contributions = append(s.contributions, contribution{layer: l})
			t.drawLayers = append(t.drawLayers, l)
		}
	}
	walk(t.root)

	// Content rects bottom up: children were created after their parents.
	for i := len(created) - 1; i >= 0; i-- {
		s := created[i]
		var rect geom.Rect
		for _, c := range s.contributions {
			if c.layer != nil {
				rect = rect.Union(c.layer.draw.DrawableContentRect)
			} else {
				rect = rect.Union(c.surface.contentRect)
			}
		}
		s.contentRect = rect.Intersect(viewport)

		parentTarget := pt.Effect.Node(pt.Effect.ParentID(s.effectID)).TargetID
		s.drawOpacity = 1
		for id := s.effectID; id != parentTarget && id != property.InvalidNodeID; id = pt.Effect.ParentID(id) {
			s.drawOpacity *= pt.Effect.Node(id).Opacity
		}
		if s.owner != nil && s.owner.clipIndex > property.RootNodeID {
			if c := pt.Clip.Node(s.owner.clipIndex); c != nil {
				s.clipRect, s.isClipped = c.ScreenClip, true
			}
		}
	}

	t.surfaces = t.surfaces[:0]
	var order func(s *renderSurface)
	order = func(s *renderSurface) {
		for _, c := range s.contributions {
			if c.surface != nil {
				order(c.surface)
			}
		}
		t.surfaces = append(t.surfaces, s)
	}
	order(root)
}

// DrawLayers returns the layers that contribute quads, in paint order.
func (t *LayerTreeImpl) DrawLayers() []*LayerImpl {
	t.UpdateDrawProperties()
	return t.drawLayers
}

// RenderSurfaceCount returns the number of render surfaces, the root
// surface included.
func (t *LayerTreeImpl) RenderSurfaceCount() int {
	t.UpdateDrawProperties()
	return len(t.surfaces)
}
