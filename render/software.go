// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// Stats counts the work of a SoftwareRenderer.
type Stats struct {
	Frames       int
	Passes       int
	Quads        int
	SkippedQuads int
}

// SoftwareRenderer draws compositor frames on the CPU.
//
// Offscreen targets of non-root passes are kept per RenderPassID and
// reused while the pass keeps appearing in frames.
//
// SoftwareRenderer is not safe for concurrent use.
type SoftwareRenderer struct {
	resources ResourceLookup
	passes    map[quad.RenderPassID]*PixmapTarget
	stats     Stats
}

// NewSoftwareRenderer returns a renderer that reads resource pixels from
// resources.
func NewSoftwareRenderer(resources ResourceLookup) *SoftwareRenderer {
	return &SoftwareRenderer{
		resources: resources,
		passes:    make(map[quad.RenderPassID]*PixmapTarget),
	}
}

// Capabilities implements Renderer.
func (r *SoftwareRenderer) Capabilities() Capabilities {
	return Capabilities{PartialSwap: true}
}

// Stats returns cumulative counts.
func (r *SoftwareRenderer) Stats() Stats {
	return r.stats
}

// PassTargetCount returns the number of retained offscreen targets.
func (r *SoftwareRenderer) PassTargetCount() int {
	return len(r.passes)
}

// DrawFrame implements Renderer. The root pass is drawn only inside its
// damage rect; the rest of target keeps the previous frame.
func (r *SoftwareRenderer) DrawFrame(frame *quad.CompositorFrame, target RenderTarget) error {
	if target == nil {
		return ErrNilTarget
	}
	dst := target.Image()
	if dst == nil {
		return ErrNoCPUAccess
	}
	if frame == nil || len(frame.RenderPassList) == 0 {
		return ErrEmptyFrame
	}

	last := len(frame.RenderPassList) - 1
	live := make(map[quad.RenderPassID]bool, last)
	for _, pass := range frame.RenderPassList[:last] {
		live[pass.ID] = true
	}
	for id := range r.passes {
		if !live[id] {
			delete(r.passes, id)
		}
	}

	for i, pass := range frame.RenderPassList {
		var img *image.RGBA
		var scissor image.Rectangle
		origin := image.Pt(pass.OutputRect.X, pass.OutputRect.Y)
		if i == last {
			img = dst
			scissor = toImageRect(pass.DamageRect.Offset(-origin.X, -origin.Y)).Intersect(dst.Bounds())
			bg := frame.Metadata.RootBackgroundColor
			if pass.HasTransparentBackground {
				bg.A = 0
			}
			draw.Draw(dst, scissor, image.NewUniform(toRGBA(bg)), image.Point{}, draw.Src)
		} else {
			pt := r.passTarget(pass.ID, pass.OutputRect.Size())
			img = pt.Image()
			scissor = img.Bounds()
			draw.Draw(img, scissor, image.Transparent, image.Point{}, draw.Src)
		}

		for j := len(pass.QuadList) - 1; j >= 0; j-- {
			r.drawQuad(img, origin, scissor, pass.QuadList[j])
		}
		r.stats.Passes++

		for _, req := range pass.CopyRequests {
			area := pass.OutputRect
			if !req.Area.IsEmpty() {
				area = req.Area.Intersect(pass.OutputRect)
			}
			snap := NewPixmapTargetFromImage(img).Snapshot(toImageRect(area.Offset(-origin.X, -origin.Y)))
			req.SendResult(quad.CopyResult{Image: snap, Rect: area})
		}
	}

	r.stats.Frames++
	return nil
}

func (r *SoftwareRenderer) passTarget(id quad.RenderPassID, size geom.Size) *PixmapTarget {
	t, ok := r.passes[id]
	if !ok {
		t = NewPixmapTarget(size.Width, size.Height)
		r.passes[id] = t
		return t
	}
	t.Resize(size.Width, size.Height)
	return t
}

func (r *SoftwareRenderer) bitmap(id quad.ResourceID) (*image.RGBA, bool) {
	if r.resources == nil || id == 0 {
		return nil, false
	}
	return r.resources.Bitmap(id)
}

func (r *SoftwareRenderer) drawQuad(dst *image.RGBA, origin image.Point, scissor image.Rectangle, q *quad.DrawQuad) {
	sqs := q.Shared
	if sqs == nil {
		sqs = &quad.SharedQuadState{QuadToTargetTransform: geom.Identity(), Opacity: 1}
	}
	m := geom.Translation(float64(-origin.X), float64(-origin.Y)).Multiply(sqs.QuadToTargetTransform)
	clip := scissor
	if sqs.IsClipped {
		clip = clip.Intersect(toImageRect(sqs.ClipRect.Offset(-origin.X, -origin.Y)))
	}
	clip = clip.Intersect(toImageRect(m.MapRect(q.VisibleRect)))
	if clip.Empty() || sqs.Opacity <= 0 {
		r.stats.SkippedQuads++
		return
	}

	target := dst
	var scratch *image.RGBA
	if sqs.BlendMode != quad.BlendNormal {
		scratch = image.NewRGBA(clip)
		target = scratch
	}
	if !r.drawPayload(target, clip, m, q, sqs.Opacity) {
		r.stats.SkippedQuads++
		return
	}
	if scratch != nil {
		blendInto(dst, scratch, sqs.BlendMode)
	}
	r.stats.Quads++
}

// drawPayload draws the material of q and reports whether anything could
// be drawn.
func (r *SoftwareRenderer) drawPayload(dst *image.RGBA, clip image.Rectangle, m geom.Transform, q *quad.DrawQuad, opacity float64) bool {
	switch p := q.Payload.(type) {
	case *quad.SolidColor:
		fillRect(dst, clip, m, q.VisibleRect.ToRectF(), withOpacity(p.Color.R, p.Color.G, p.Color.B, p.Color.A, opacity))
		return true

	case *quad.Texture:
		src, ok := r.bitmap(p.Resource)
		if !ok {
			cc.Logger().Warn("render: texture without pixels", "resource", p.Resource)
			return false
		}
		if p.BackgroundColor.A > 0 {
			c := p.BackgroundColor
			fillRect(dst, clip, m, q.Rect.ToRectF(), withOpacity(c.R, c.G, c.B, c.A, opacity))
		}
		b := src.Bounds()
		sr := b
		if p.UVBottomRight != (geom.Point{}) {
			sr = image.Rect(
				b.Min.X+int(math.Round(p.UVTopLeft.X*float64(b.Dx()))),
				b.Min.Y+int(math.Round(p.UVTopLeft.Y*float64(b.Dy()))),
				b.Min.X+int(math.Round(p.UVBottomRight.X*float64(b.Dx()))),
				b.Min.Y+int(math.Round(p.UVBottomRight.Y*float64(b.Dy()))),
			)
		}
		var img image.Image = src
		if !p.PremultipliedAlpha {
			img = &image.NRGBA{Pix: src.Pix, Stride: src.Stride, Rect: src.Rect}
		}
		drawSource(dst, clip, m, q.Rect, img, sr, opacity*vertexOpacity(p.VertexOpacity), p.Nearest, p.FlipY)
		return true

	case *quad.Tile:
		src, ok := r.bitmap(p.Resource)
		if !ok {
			return false
		}
		sr := toImageRect(p.TexCoordRect.ToEnclosingRect()).Add(src.Bounds().Min)
		drawSource(dst, clip, m, q.Rect, src, sr, opacity, p.Nearest, false)
		return true

	case *quad.RenderPassRef:
		pt, ok := r.passes[p.PassID]
		if !ok {
			cc.Logger().Warn("render: quad references missing render pass", "pass", p.PassID)
			return false
		}
		src := pt.Image()
		if len(p.Filters) > 0 || p.MaskResource != 0 {
			src = cloneRGBA(src)
			applyFilters(src, p.Filters)
			if mask, ok := r.bitmap(p.MaskResource); ok {
				applyMask(src, mask, p.MaskUVRect)
			}
		}
		drawSource(dst, clip, m, q.Rect, src, src.Bounds(), opacity, false, false)
		return true

	case *quad.YUVVideo:
		img, ok := r.convertYUV(p)
		if !ok {
			return false
		}
		drawSource(dst, clip, m, q.Rect, img, img.Bounds(), opacity, false, false)
		return true

	case *quad.StreamVideo:
		src, ok := r.bitmap(p.Resource)
		if !ok {
			return false
		}
		inv, ok := p.TextureMatrix.Inverse()
		if !ok {
			return false
		}
		b := src.Bounds()
		s2d := m.
			Multiply(geom.Translation(float64(q.Rect.X), float64(q.Rect.Y))).
			Multiply(geom.Scaling(float64(q.Rect.Width), float64(q.Rect.Height))).
			Multiply(inv).
			Multiply(geom.Scaling(1/float64(b.Dx()), 1/float64(b.Dy()))).
			Multiply(geom.Translation(float64(-b.Min.X), float64(-b.Min.Y)))
		transformSource(dst, clip, s2d, src, b, opacity, false)
		return true

	case *quad.DebugBorder:
		c := withOpacity(p.Color.R, p.Color.G, p.Color.B, p.Color.A, opacity)
		w := math.Max(float64(p.Width), 1)
		rf := q.Rect.ToRectF()
		fillRect(dst, clip, m, geom.RectF{X: rf.X, Y: rf.Y, Width: rf.Width, Height: w}, c)
		fillRect(dst, clip, m, geom.RectF{X: rf.X, Y: rf.Bottom() - w, Width: rf.Width, Height: w}, c)
		fillRect(dst, clip, m, geom.RectF{X: rf.X, Y: rf.Y + w, Width: w, Height: rf.Height - 2*w}, c)
		fillRect(dst, clip, m, geom.RectF{X: rf.Right() - w, Y: rf.Y + w, Width: w, Height: rf.Height - 2*w}, c)
		return true

	case *quad.Checkerboard:
		cell := 8 * float64(p.Scale)
		if cell < 1 {
			cell = 8
		}
		light := withOpacity(p.Color.R, p.Color.G, p.Color.B, p.Color.A, opacity)
		dark := withOpacity(p.Color.R*0.8, p.Color.G*0.8, p.Color.B*0.8, p.Color.A, opacity)
		vr := q.VisibleRect.ToRectF()
		fillRect(dst, clip, m, vr, light)
		for y, row := vr.Y, 0; y < vr.Bottom(); y, row = y+cell, row+1 {
			for x, col := vr.X, 0; x < vr.Right(); x, col = x+cell, col+1 {
				if (row+col)%2 == 1 {
					fillRect(dst, clip, m, geom.RectF{
						X: x, Y: y,
						Width: math.Min(cell, vr.Right()-x), Height: math.Min(cell, vr.Bottom()-y),
					}, dark)
				}
			}
		}
		return true

	default:
		cc.Logger().Warn("render: unsupported quad material", "material", q.Material().String())
		return false
	}
}

func (r *SoftwareRenderer) convertYUV(p *quad.YUVVideo) (*image.RGBA, bool) {
	yp, ok1 := r.bitmap(p.Y)
	up, ok2 := r.bitmap(p.U)
	vp, ok3 := r.bitmap(p.V)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	ap, _ := r.bitmap(p.A)
	return ConvertYUV(p.ColorSpace, yp, up, vp, ap, p.YTexCoord), true
}

func yuvToRGB(cs quad.YUVColorSpace, y, u, v float64) (r, g, b float64) {
	u -= 128
	v -= 128
	switch cs {
	case quad.ColorSpaceJPEG:
		return y + 1.402*v, y - 0.344136*u - 0.714136*v, y + 1.772*u
	case quad.ColorSpaceRec709:
		y = 1.164 * (y - 16)
		return y + 1.793*v, y - 0.213*u - 0.533*v, y + 2.112*u
	default:
		y = 1.164 * (y - 16)
		return y + 1.596*v, y - 0.392*u - 0.813*v, y + 2.017*u
	}
}

// vertexOpacity averages per-vertex opacities. All zero means the quad
// did not set them.
func vertexOpacity(v [4]float32) float64 {
	sum := float64(v[0] + v[1] + v[2] + v[3])
	if sum == 0 {
		return 1
	}
	return sum / 4
}

func withOpacity(r, g, b, a, opacity float64) color.RGBA {
	return toRGBAColor(r, g, b, a*opacity)
}

func toRGBAColor(r, g, b, a float64) color.RGBA {
	a = clamp01(a)
	return color.RGBA{
		R: uint8(clamp01(r)*a*255 + 0.5),
		G: uint8(clamp01(g)*a*255 + 0.5),
		B: uint8(clamp01(b)*a*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

func toImageRect(r geom.Rect) image.Rectangle {
	if r.IsEmpty() {
		return image.Rectangle{}
	}
	return image.Rect(r.X, r.Y, r.Right(), r.Bottom())
}

func fillRect(dst *image.RGBA, clip image.Rectangle, m geom.Transform, r geom.RectF, c color.RGBA) {
	if r.IsEmpty() || c.A == 0 {
		return
	}
	src := image.NewUniform(c)
	if m.B == 0 && m.D == 0 {
		d := m.MapRectF(r)
		px := image.Rect(
			int(math.Round(d.X)), int(math.Round(d.Y)),
			int(math.Round(d.Right())), int(math.Round(d.Bottom())),
		).Intersect(clip)
		if !px.Empty() {
			draw.Draw(dst, px, src, image.Point{}, draw.Over)
		}
		return
	}
	inv, ok := m.Inverse()
	if !ok {
		return
	}
	bbox := toImageRect(m.MapRectF(r).ToEnclosingRect()).Intersect(clip)
	if bbox.Empty() {
		return
	}
	mask := image.NewAlpha(bbox)
	for y := bbox.Min.Y; y < bbox.Max.Y; y++ {
		for x := bbox.Min.X; x < bbox.Max.X; x++ {
			p := inv.MapPoint(geom.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			if p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom() {
				mask.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		}
	}
	draw.DrawMask(dst, bbox, src, image.Point{}, mask, bbox.Min, draw.Over)
}

// drawSource maps the source rect sr of src onto the quad-space rect
// dstRect.
func drawSource(dst *image.RGBA, clip image.Rectangle, m geom.Transform, dstRect geom.Rect, src image.Image, sr image.Rectangle, opacity float64, nearest, flipY bool) {
	if sr.Empty() || dstRect.IsEmpty() {
		return
	}
	sx := float64(dstRect.Width) / float64(sr.Dx())
	sy := float64(dstRect.Height) / float64(sr.Dy())
	ty := float64(dstRect.Y)
	if flipY {
		sy, ty = -sy, ty+float64(dstRect.Height)
	}
	s2d := m.
		Multiply(geom.Translation(float64(dstRect.X), ty)).
		Multiply(geom.Scaling(sx, sy)).
		Multiply(geom.Translation(float64(-sr.Min.X), float64(-sr.Min.Y)))
	transformSource(dst, clip, s2d, src, sr, opacity, nearest)
}

func transformSource(dst *image.RGBA, clip image.Rectangle, s2d geom.Transform, src image.Image, sr image.Rectangle, opacity float64, nearest bool) {
	sub, ok := dst.SubImage(clip).(*image.RGBA)
	if !ok || sub.Rect.Empty() {
		return
	}
	var mask image.Image
	if opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(clamp01(opacity)*255 + 0.5)})
	}
	if s2d.IsTranslation() && s2d.C == math.Trunc(s2d.C) && s2d.F == math.Trunc(s2d.F) {
		off := image.Pt(int(s2d.C), int(s2d.F))
		draw.DrawMask(sub, sr.Add(off), src, sr.Min, mask, image.Point{}, draw.Over)
		return
	}
	aff := f64.Aff3{s2d.A, s2d.B, s2d.C, s2d.D, s2d.E, s2d.F}
	var opts *xdraw.Options
	if mask != nil {
		opts = &xdraw.Options{SrcMask: mask}
	}
	var interp xdraw.Transformer = xdraw.BiLinear
	if nearest {
		interp = xdraw.NearestNeighbor
	}
	interp.Transform(sub, aff, src, sr, xdraw.Over, opts)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	return out
}

func applyFilters(img *image.RGBA, filters []quad.Filter) {
	for _, f := range filters {
		switch f.Kind {
		case quad.FilterOpacity:
			a := clamp01(f.Amount)
			for i := range img.Pix {
				img.Pix[i] = uint8(float64(img.Pix[i])*a + 0.5)
			}
		case quad.FilterGrayscale:
			amt := clamp01(f.Amount)
			for i := 0; i+3 < len(img.Pix); i += 4 {
				r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
				l := 0.2126*r + 0.7152*g + 0.0722*b
				img.Pix[i] = uint8(r + (l-r)*amt + 0.5)
				img.Pix[i+1] = uint8(g + (l-g)*amt + 0.5)
				img.Pix[i+2] = uint8(b + (l-b)*amt + 0.5)
			}
		case quad.FilterBlur:
			boxBlur(img, int(math.Round(f.Amount)))
		default:
			cc.Logger().Warn("render: unknown filter", "kind", int(f.Kind))
		}
	}
}

// boxBlur applies a separable box blur of the given radius.
func boxBlur(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	tmp := image.NewRGBA(b)
	blurPass(tmp, img, radius, true)
	blurPass(img, tmp, radius, false)
}

func blurPass(dst, src *image.RGBA, radius int, horizontal bool) {
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum [4]int
			n := 0
			for k := -radius; k <= radius; k++ {
				px, py := x, y
				if horizontal {
					px += k
				} else {
					py += k
				}
				if !(image.Point{X: px, Y: py}).In(b) {
					continue
				}
				o := src.PixOffset(px, py)
				for c := range 4 {
					sum[c] += int(src.Pix[o+c])
				}
				n++
			}
			o := dst.PixOffset(x, y)
			for c := range 4 {
				dst.Pix[o+c] = uint8(sum[c] / n) //nolint:gosec // average of uint8
			}
		}
	}
}

// applyMask multiplies img by the alpha of the part of mask named by the
// normalized uv rect (all of mask when empty).
func applyMask(img, mask *image.RGBA, uv geom.RectF) {
	if uv.IsEmpty() {
		uv = geom.RectF{Width: 1, Height: 1}
	}
	b := img.Bounds()
	mb := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			u := uv.X + (float64(x-b.Min.X)+0.5)/float64(b.Dx())*uv.Width
			v := uv.Y + (float64(y-b.Min.Y)+0.5)/float64(b.Dy())*uv.Height
			mx := mb.Min.X + int(u*float64(mb.Dx()))
			my := mb.Min.Y + int(v*float64(mb.Dy()))
			a := 0.0
			if (image.Point{X: mx, Y: my}).In(mb) {
				a = float64(mask.RGBAAt(mx, my).A) / 255
			}
			o := img.PixOffset(x, y)
			for c := range 4 {
				img.Pix[o+c] = uint8(float64(img.Pix[o+c])*a + 0.5)
			}
		}
	}
}

// blendInto composites the premultiplied src onto dst over src's bounds.
func blendInto(dst, src *image.RGBA, mode quad.BlendMode) {
	b := src.Bounds().Intersect(dst.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			so := src.PixOffset(x, y)
			do := dst.PixOffset(x, y)
			as := float64(src.Pix[so+3]) / 255
			ab := float64(dst.Pix[do+3]) / 255
			var out [4]float64
			for c := range 3 {
				cs := float64(src.Pix[so+c]) / 255
				cb := float64(dst.Pix[do+c]) / 255
				switch mode {
				case quad.BlendMultiply:
					out[c] = cs*(1-ab) + cb*(1-as) + cs*cb
				case quad.BlendScreen:
					out[c] = cs + cb - cs*cb
				case quad.BlendDstIn:
					out[c] = cb * as
				default:
					out[c] = cs + cb*(1-as)
				}
			}
			if mode == quad.BlendDstIn {
				out[3] = ab * as
			} else {
				out[3] = as + ab - as*ab
			}
			for c := range 4 {
				dst.Pix[do+c] = uint8(clamp01(out[c])*255 + 0.5)
			}
		}
	}
}

// String describes the counts, for logs.
func (s Stats) String() string {
	return fmt.Sprintf("frames=%d passes=%d quads=%d skipped=%d", s.Frames, s.Passes, s.Quads, s.SkippedQuads)
}
