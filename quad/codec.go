package quad

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gogpu/cc/geom"
)

// Codec errors.
var (
	ErrUnknownMaterial   = errors.New("quad: unknown material")
	ErrBadSharedQuadRef  = errors.New("quad: shared quad state index out of range")
	ErrMissingRenderPass = errors.New("quad: frame has no render pass")
)

// wireFrame is the JSON form of a CompositorFrame. Quads reference their
// shared quad state by index into the pass's shared state list.
type wireFrame struct {
	Metadata  CompositorFrameMetadata `json:"metadata"`
	Passes    []wirePass              `json:"render_passes"`
	Resources []TransferableResource  `json:"resources,omitempty"`
}

type wirePass struct {
	ID                       RenderPassID       `json:"id"`
	OutputRect               geom.Rect          `json:"output_rect"`
	DamageRect               geom.Rect          `json:"damage_rect"`
	TransformToRootTarget    geom.Transform     `json:"transform_to_root_target"`
	HasTransparentBackground bool               `json:"has_transparent_background"`
	Shared                   []*SharedQuadState `json:"shared_quad_states"`
	Quads                    []wireQuad         `json:"quads"`
}

type wireQuad struct {
	Material      string          `json:"material"`
	Shared        int             `json:"shared"`
	Rect          geom.Rect       `json:"rect"`
	OpaqueRect    geom.Rect       `json:"opaque_rect"`
	VisibleRect   geom.Rect       `json:"visible_rect"`
	NeedsBlending bool            `json:"needs_blending,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalFrame encodes a frame for an out-of-process display.
// Copy requests are not transferred.
func MarshalFrame(f *CompositorFrame) ([]byte, error) {
	w := wireFrame{Metadata: f.Metadata, Resources: f.ResourceList}
	for _, p := range f.RenderPassList {
		wp := wirePass{
			ID:                       p.ID,
			OutputRect:               p.OutputRect,
			DamageRect:               p.DamageRect,
			TransformToRootTarget:    p.TransformToRootTarget,
			HasTransparentBackground: p.HasTransparentBackground,
			Shared:                   p.SharedQuadStateList,
			Quads:                    make([]wireQuad, 0, len(p.QuadList)),
		}
		index := make(map[*SharedQuadState]int, len(p.SharedQuadStateList))
		for i, sqs := range p.SharedQuadStateList {
			index[sqs] = i
		}
		for _, q := range p.QuadList {
			if q.Payload == nil {
				return nil, fmt.Errorf("%w: quad without payload", ErrUnknownMaterial)
			}
			shared, ok := index[q.Shared]
			if !ok {
				return nil, fmt.Errorf("%w: pass %v", ErrBadSharedQuadRef, p.ID)
			}
			payload, err := json.Marshal(q.Payload)
			if err != nil {
				return nil, fmt.Errorf("quad: marshal %s payload: %w", q.Material(), err)
			}
			wp.Quads = append(wp.Quads, wireQuad{
				Material:      q.Material().String(),
				Shared:        shared,
				Rect:          q.Rect,
				OpaqueRect:    q.OpaqueRect,
				VisibleRect:   q.VisibleRect,
				NeedsBlending: q.NeedsBlending,
				Payload:       payload,
			})
		}
		w.Passes = append(w.Passes, wp)
	}
	return json.Marshal(w)
}

// UnmarshalFrame decodes a frame produced by MarshalFrame.
func UnmarshalFrame(data []byte) (*CompositorFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("quad: unmarshal frame: %w", err)
	}
	if len(w.Passes) == 0 {
		return nil, ErrMissingRenderPass
	}
	f := &CompositorFrame{Metadata: w.Metadata, ResourceList: w.Resources}
	for _, wp := range w.Passes {
		p := NewRenderPass(wp.ID, wp.OutputRect, wp.DamageRect, wp.TransformToRootTarget)
		p.HasTransparentBackground = wp.HasTransparentBackground
		p.SharedQuadStateList = wp.Shared
		for _, wq := range wp.Quads {
			if wq.Shared < 0 || wq.Shared >= len(p.SharedQuadStateList) {
				return nil, fmt.Errorf("%w: %d in pass %v", ErrBadSharedQuadRef, wq.Shared, wp.ID)
			}
			payload, err := decodePayload(wq.Material, wq.Payload)
			if err != nil {
				return nil, err
			}
			p.QuadList = append(p.QuadList, &DrawQuad{
				Rect:          wq.Rect,
				OpaqueRect:    wq.OpaqueRect,
				VisibleRect:   wq.VisibleRect,
				NeedsBlending: wq.NeedsBlending,
				Shared:        p.SharedQuadStateList[wq.Shared],
				Payload:       payload,
			})
		}
		f.RenderPassList = append(f.RenderPassList, p)
	}
	return f, nil
}

func decodePayload(material string, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch material {
	case MaterialSolidColor.String():
		p = &SolidColor{}
	case MaterialTexture.String():
		p = &Texture{}
	case MaterialTiled.String():
		p = &Tile{}
	case MaterialRenderPass.String():
		p = &RenderPassRef{}
	case MaterialYUVVideo.String():
		p = &YUVVideo{}
	case MaterialStreamVideo.String():
		p = &StreamVideo{}
	case MaterialDebugBorder.String():
		p = &DebugBorder{}
	case MaterialCheckerboard.String():
		p = &Checkerboard{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMaterial, material)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("quad: unmarshal %s payload: %w", material, err)
	}
	return p, nil
}
