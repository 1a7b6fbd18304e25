package impl

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// Debug border colors per content kind.
var (
	surfaceBorderColor = gputypes.Color{R: 0, G: 0, B: 1, A: 0.8}
	pictureBorderColor = gputypes.Color{R: 0, G: 0.6, B: 0, A: 0.8}
	textureBorderColor = gputypes.Color{R: 0.6, G: 0, B: 0.6, A: 0.8}
	layerBorderColor   = gputypes.Color{R: 1, G: 0.6, B: 0, A: 0.8}
)

func debugBorderColor(c Content) gputypes.Color {
	switch c.(type) {
	case *PictureContent:
		return pictureBorderColor
	case *TextureContent, *VideoContent, *UIResourceContent:
		return textureBorderColor
	default:
		return layerBorderColor
	}
}

// buildRenderPasses fills frame with one render pass per non-empty render
// surface of t, children before parents and the root pass last.
func (h *LayerTreeHostImpl) buildRenderPasses(t *LayerTreeImpl, frame *FrameData) {
	scale := t.deviceScaleFactor
	for _, s := range t.surfaces {
		var reqs []*quad.CopyOutputRequest
		if s.owner != nil && s.owner.effectIndex == s.effectID {
			reqs = s.owner.takeCopyRequests()
		}
		if !s.isRoot() && s.contentRect.IsEmpty() {
			for _, r := range reqs {
				r.SendEmptyResult()
			}
			continue
		}
		out := s.contentRect
		pass := quad.NewRenderPass(s.passID, out, out, geom.Identity())
		pass.HasTransparentBackground = !s.isRoot() || t.backgroundColor.A < 1
		pass.CopyRequests = reqs

		for i := len(s.contributions) - 1; i >= 0; i-- {
			c := s.contributions[i]
			if c.surface != nil {
				h.appendSurfaceQuads(pass, c.surface)
				continue
			}
			h.appendLayerQuads(pass, c.layer, scale, frame)
		}
		frame.RenderPasses = append(frame.RenderPasses, pass)
	}

	// Copy requests of layers that drew nothing are aborted.
	t.forEachLayer(func(l *LayerImpl) {
		if l.HasCopyRequest() && !t.ownsDrawnSurface(l) {
			l.abortCopyRequests()
		}
	})
}

func (t *LayerTreeImpl) ownsDrawnSurface(l *LayerImpl) bool {
	for _, s := range t.surfaces {
		if s.owner == l && !s.contentRect.IsEmpty() {
			return true
		}
	}
	return false
}

func (h *LayerTreeHostImpl) appendLayerQuads(pass *quad.RenderPass, l *LayerImpl, scale float64, frame *FrameData) {
	dp := l.draw
	sqs := pass.CreateAndAppendSharedQuadState()
	sqs.QuadToTargetTransform = dp.ScreenSpaceTransform
	sqs.QuadLayerBounds = l.bounds
	sqs.VisibleQuadLayerRect = dp.VisibleLayerRect
	sqs.ClipRect, sqs.IsClipped = dp.ClipRect, dp.IsClipped
	sqs.Opacity = dp.Opacity
	if l.draw.RenderTarget != l.effectIndex {
		sqs.BlendMode = l.blendMode
	}

	if h.settings.ShowDebugBorders {
		r := geom.RectFromSize(l.bounds)
		pass.AppendQuad(&quad.DrawQuad{
			Rect: r, VisibleRect: dp.VisibleLayerRect, NeedsBlending: true, Shared: sqs,
			Payload: &quad.DebugBorder{Color: debugBorderColor(l.content), Width: h.settings.DebugBorderWidth / float32(scale)},
		})
	}

	ctx := &AppendQuadsContext{
		Layer:         l,
		Pass:          pass,
		Shared:        sqs,
		VisibleRect:   dp.VisibleLayerRect,
		ContentsScale: scale,
	}
	l.content.AppendQuads(ctx)
	frame.CheckerboardedTiles += ctx.CheckerboardedTiles
	frame.WillDrawLayers = append(frame.WillDrawLayers, l)
}

func (h *LayerTreeHostImpl) appendSurfaceQuads(pass *quad.RenderPass, s *renderSurface) {
	if s.contentRect.IsEmpty() {
		return
	}
	ref := &quad.RenderPassRef{PassID: s.passID, Filters: s.filters}
	if s.maskLayer != nil && s.owner != nil {
		if mc, ok := s.maskLayer.content.(maskContent); ok {
			if id, ok := mc.maskResource(s.maskLayer); ok {
				maskRect := s.owner.draw.ScreenSpaceTransform.MapRect(geom.RectFromSize(s.maskLayer.bounds))
				if !maskRect.IsEmpty() {
					ref.MaskResource = id
					ref.MaskUVRect = geom.RectF{
						X:      float64(s.contentRect.X-maskRect.X) / float64(maskRect.Width),
						Y:      float64(s.contentRect.Y-maskRect.Y) / float64(maskRect.Height),
						Width:  float64(s.contentRect.Width) / float64(maskRect.Width),
						Height: float64(s.contentRect.Height) / float64(maskRect.Height),
					}
				}
			}
		}
	}

	if h.settings.ShowDebugBorders {
		sqs := pass.CreateAndAppendSharedQuadState()
		pass.AppendQuad(&quad.DrawQuad{
			Rect: s.contentRect, VisibleRect: s.contentRect, NeedsBlending: true, Shared: sqs,
			Payload: &quad.DebugBorder{Color: surfaceBorderColor, Width: h.settings.DebugBorderWidth},
		})
	}

	appendRef := func(m geom.Transform) {
		sqs := pass.CreateAndAppendSharedQuadState()
		sqs.QuadToTargetTransform = m
		sqs.QuadLayerBounds = s.contentRect.Size()
		sqs.VisibleQuadLayerRect = s.contentRect
		sqs.ClipRect, sqs.IsClipped = s.clipRect, s.isClipped
		sqs.Opacity = s.drawOpacity
		sqs.BlendMode = s.blendMode
		pass.AppendQuad(&quad.DrawQuad{
			Rect:          s.contentRect,
			VisibleRect:   s.contentRect,
			NeedsBlending: true,
			Payload:       ref,
		})
	}
	appendRef(geom.Identity())

	// The replica draws the surface a second time, behind the original,
	// moved by the replica transform in the owner's space.
	if s.owner == nil {
		return
	}
	if r := s.owner.replica; r != nil {
		screen := s.owner.draw.ScreenSpaceTransform
		if inv, ok := screen.Inverse(); ok {
			local := geom.Translation(r.position.X, r.position.Y).Multiply(r.transform)
			appendRef(screen.Multiply(local).Multiply(inv))
		}
	}
}
