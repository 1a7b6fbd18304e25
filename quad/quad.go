package quad

import "github.com/gogpu/cc/geom"

// BlendMode is the blend mode of a shared quad state.
type BlendMode uint8

// Blend modes.
const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendDstIn
)

// SharedQuadState is the state shared by all quads of one layer (or render
// surface) within a render pass. Quads reference it; the pass owns it.
type SharedQuadState struct {
	// QuadToTargetTransform maps quad space into the render pass target.
	QuadToTargetTransform geom.Transform

	// QuadLayerBounds is the bounds of the layer the quads came from.
	QuadLayerBounds geom.Size

	// VisibleQuadLayerRect is the visible part of the layer, in layer space.
	VisibleQuadLayerRect geom.Rect

	// ClipRect is in target space and applies only when IsClipped is set.
	ClipRect  geom.Rect
	IsClipped bool

	Opacity          float64
	BlendMode        BlendMode
	SortingContextID int
}

// DrawQuad is one draw primitive of a render pass.
// Quads are immutable once appended to a pass.
type DrawQuad struct {
	// Rect is the quad rect in quad (layer content) space.
	Rect geom.Rect

	// OpaqueRect is the part of Rect known to be fully opaque.
	OpaqueRect geom.Rect

	// VisibleRect is the part of Rect not occluded.
	VisibleRect geom.Rect

	NeedsBlending bool

	Shared  *SharedQuadState
	Payload Payload
}

// Material returns the quad material, or MaterialInvalid without payload.
func (q *DrawQuad) Material() Material {
	if q.Payload == nil {
		return MaterialInvalid
	}
	return q.Payload.Material()
}

// Resources returns the resources the quad samples.
func (q *DrawQuad) Resources() []ResourceID {
	if q.Payload == nil {
		return nil
	}
	return q.Payload.Resources()
}

// IsDebug reports whether the quad only exists for diagnostics.
func (q *DrawQuad) IsDebug() bool {
	return q.Material() == MaterialDebugBorder
}

// TargetRect returns the bounding box of the visible quad rect in target
// space, clipped when the shared state is clipped.
func (q *DrawQuad) TargetRect() geom.Rect {
	if q.Shared == nil {
		return q.VisibleRect
	}
	r := q.Shared.QuadToTargetTransform.MapRect(q.VisibleRect)
	if q.Shared.IsClipped {
		r = r.Intersect(q.Shared.ClipRect)
	}
	return r
}
