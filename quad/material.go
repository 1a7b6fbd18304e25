// Package quad defines the per-frame draw primitives a compositor emits:
// draw quads grouped by shared quad state into render passes, and the
// compositor frame that carries render passes and resources to a display.
//
// A DrawQuad's material is a closed set. Each material has exactly one
// payload type, and consumers switch over Payload exhaustively:
//
//	switch p := q.Payload.(type) {
//	case *quad.SolidColor:
//	case *quad.Texture:
//	...
//	}
package quad

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
)

// Material identifies the kind of a DrawQuad.
type Material uint8

// Material constants.
const (
	MaterialInvalid Material = iota
	MaterialSolidColor
	MaterialTexture
	MaterialTiled
	MaterialRenderPass
	MaterialYUVVideo
	MaterialStreamVideo
	MaterialDebugBorder
	MaterialCheckerboard
)

// String returns the material name.
func (m Material) String() string {
	switch m {
	case MaterialSolidColor:
		return "SolidColor"
	case MaterialTexture:
		return "Texture"
	case MaterialTiled:
		return "Tiled"
	case MaterialRenderPass:
		return "RenderPass"
	case MaterialYUVVideo:
		return "YUVVideo"
	case MaterialStreamVideo:
		return "StreamVideo"
	case MaterialDebugBorder:
		return "DebugBorder"
	case MaterialCheckerboard:
		return "Checkerboard"
	default:
		return "Invalid"
	}
}

// ResourceID identifies a resource owned by a resource provider.
// Zero is never a valid id.
type ResourceID uint32

// Payload is the material-specific part of a DrawQuad.
// The set of implementations is closed to this package.
type Payload interface {
	// Material returns the material this payload belongs to.
	Material() Material

	// Resources returns the resources this payload samples.
	Resources() []ResourceID

	sealed()
}

// SolidColor fills the quad with a color.
type SolidColor struct {
	Color                gputypes.Color
	ForceAntiAliasingOff bool
}

// Texture samples a resource, typically a mailbox texture or UI resource.
type Texture struct {
	Resource           ResourceID
	PremultipliedAlpha bool
	UVTopLeft          geom.Point
	UVBottomRight      geom.Point
	BackgroundColor    gputypes.Color
	VertexOpacity      [4]float32
	FlipY              bool
	Nearest            bool
}

// Tile samples a rasterized tile of a picture layer.
type Tile struct {
	Resource     ResourceID
	TexCoordRect geom.RectF
	TextureSize  geom.Size
	Nearest      bool
}

// RenderPassRef draws the output of another render pass of the same frame.
type RenderPassRef struct {
	PassID       RenderPassID
	MaskResource ResourceID
	MaskUVRect   geom.RectF
	Filters      []Filter
}

// YUVColorSpace selects the YUV to RGB conversion matrix.
type YUVColorSpace uint8

// YUV color spaces.
const (
	ColorSpaceRec601 YUVColorSpace = iota
	ColorSpaceJPEG
	ColorSpaceRec709
)

// YUVVideo samples separate Y, U, V (and optional A) planes.
type YUVVideo struct {
	Y, U, V, A   ResourceID
	YTexCoord    geom.RectF
	UVTexCoord   geom.RectF
	YTextureSize geom.Size
	ColorSpace   YUVColorSpace
}

// StreamVideo samples an external stream texture through a texture matrix.
type StreamVideo struct {
	Resource      ResourceID
	TextureMatrix geom.Transform
}

// DebugBorder strokes the quad outline.
type DebugBorder struct {
	Color gputypes.Color
	Width float32
}

// Checkerboard fills an area whose content is not rasterized yet.
type Checkerboard struct {
	Color gputypes.Color
	Scale float32
}

func (*SolidColor) Material() Material    { return MaterialSolidColor }
func (*Texture) Material() Material       { return MaterialTexture }
func (*Tile) Material() Material          { return MaterialTiled }
func (*RenderPassRef) Material() Material { return MaterialRenderPass }
func (*YUVVideo) Material() Material      { return MaterialYUVVideo }
func (*StreamVideo) Material() Material   { return MaterialStreamVideo }
func (*DebugBorder) Material() Material   { return MaterialDebugBorder }
func (*Checkerboard) Material() Material  { return MaterialCheckerboard }

func (*SolidColor) Resources() []ResourceID    { return nil }
func (p *Texture) Resources() []ResourceID     { return []ResourceID{p.Resource} }
func (p *Tile) Resources() []ResourceID        { return []ResourceID{p.Resource} }
func (p *StreamVideo) Resources() []ResourceID { return []ResourceID{p.Resource} }
func (*DebugBorder) Resources() []ResourceID   { return nil }
func (*Checkerboard) Resources() []ResourceID  { return nil }

func (p *RenderPassRef) Resources() []ResourceID {
	if p.MaskResource == 0 {
		return nil
	}
	return []ResourceID{p.MaskResource}
}

func (p *YUVVideo) Resources() []ResourceID {
	ids := []ResourceID{p.Y, p.U, p.V}
	if p.A != 0 {
		ids = append(ids, p.A)
	}
	return ids
}

func (*SolidColor) sealed()    {}
func (*Texture) sealed()       {}
func (*Tile) sealed()          {}
func (*RenderPassRef) sealed() {}
func (*YUVVideo) sealed()      {}
func (*StreamVideo) sealed()   {}
func (*DebugBorder) sealed()   {}
func (*Checkerboard) sealed()  {}

// FilterKind identifies a render pass filter operation.
type FilterKind uint8

// Filter kinds.
const (
	FilterOpacity FilterKind = iota + 1
	FilterGrayscale
	FilterBlur
)

// Filter is one entry of a filter chain applied to a render pass.
type Filter struct {
	Kind   FilterKind
	Amount float64
}
