package impl

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
)

// DamageTracker computes the part of the screen that must be redrawn by
// comparing the drawn layers of a frame with the previous frame.
//
// Damage of a frame that is computed but never swapped is kept and added
// to the next frame.
type DamageTracker struct {
	initialized bool
	viewport    geom.Size
	scale       float64
	background  gputypes.Color

	layerRects   map[int]geom.Rect
	surfaceRects map[int]geom.Rect

	// extra is damage requested with AddDamage.
	extra geom.Rect
	// undrawn is damage of frames that were not swapped.
	undrawn   geom.Rect
	forceFull bool
}

// NewDamageTracker returns a tracker whose first frame is fully damaged.
func NewDamageTracker() *DamageTracker {
	return &DamageTracker{
		layerRects:   make(map[int]geom.Rect),
		surfaceRects: make(map[int]geom.Rect),
	}
}

// AddDamage adds a screen-space rect to the next frame.
func (d *DamageTracker) AddDamage(r geom.Rect) {
	d.extra = d.extra.Union(r)
}

// ForceFullDamage makes the next frame fully damaged.
func (d *DamageTracker) ForceFullDamage() {
	d.forceFull = true
}

// Update computes the damage of the frame described by the drawn layers of
// t. UpdateDrawProperties must have run.
func (d *DamageTracker) Update(t *LayerTreeImpl) geom.Rect {
	viewport := geom.RectFromSize(t.viewportSize)
	full := !d.initialized || d.forceFull || t.propertyTrees.FullTreeDamaged ||
		d.viewport != t.viewportSize || d.scale != t.deviceScaleFactor || d.background != t.backgroundColor
	d.initialized = true
	d.viewport, d.scale, d.background = t.viewportSize, t.deviceScaleFactor, t.backgroundColor

	var damage geom.Rect
	layers := make(map[int]geom.Rect, len(t.drawLayers))
	for _, l := range t.drawLayers {
		r := l.draw.DrawableContentRect
		layers[l.id] = r
		old, existed := d.layerRects[l.id]
		switch {
		case !existed:
			damage = damage.Union(r)
		case old != r || l.LayerPropertyChanged():
			damage = damage.Union(old).Union(r)
		case !l.updateRect.IsEmpty():
			damage = damage.Union(l.draw.ScreenSpaceTransform.MapRect(l.updateRect).Intersect(r))
		}
	}
	for id, old := range d.layerRects {
		if _, ok := layers[id]; !ok {
			damage = damage.Union(old)
		}
	}
	d.layerRects = layers

	surfaces := make(map[int]geom.Rect, len(t.surfaces))
	for _, s := range t.surfaces {
		if s.isRoot() || s.contentRect.IsEmpty() {
			continue
		}
		surfaces[s.effectID] = s.contentRect
		old, existed := d.surfaceRects[s.effectID]
		changed := s.owner != nil && s.owner.LayerPropertyChanged()
		if s.maskLayer != nil && s.maskLayer.LayerPropertyChanged() {
			changed = true
		}
		if !existed || changed || old != s.contentRect {
			damage = damage.Union(old).Union(s.contentRect)
		}
	}
	for id, old := range d.surfaceRects {
		if _, ok := surfaces[id]; !ok {
			damage = damage.Union(old)
		}
	}
	d.surfaceRects = surfaces

	damage = damage.Union(d.extra)
	d.extra = geom.Rect{}
	if full {
		damage = viewport
	}
	d.undrawn = d.undrawn.Union(damage).Intersect(viewport)
	return d.undrawn
}

// DidDrawDamagedArea clears the damage once a frame was swapped.
func (d *DamageTracker) DidDrawDamagedArea() {
	d.undrawn = geom.Rect{}
	d.forceFull = false
}

// Reset forgets the previous frame. The next frame is fully damaged.
func (d *DamageTracker) Reset() {
	d.initialized = false
	clear(d.layerRects)
	clear(d.surfaceRects)
	d.undrawn = geom.Rect{}
}
