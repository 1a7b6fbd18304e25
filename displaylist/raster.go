package displaylist

import (
	"image"
	"image/color"
	"math"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Backend receives replayed commands.
type Backend interface {
	Begin(bounds geom.Rect) error
	End() error
	Save()
	Restore()
	SetTransform(t geom.Transform)
	ClipRect(r geom.RectF)
	FillRect(r geom.RectF, c gputypes.Color)
	DrawImage(img image.Image)
}

type rasterState struct {
	transform geom.Transform
	clip      image.Rectangle
}

// RasterBackend rasterizes a display list into a region of content space.
//
// Content space is layer space scaled by Scale; Dst covers the content
// rect Rect, so pixel (0, 0) of Dst is content point (Rect.X, Rect.Y).
type RasterBackend struct {
	Dst   *image.RGBA
	Rect  geom.Rect
	Scale float64

	base  geom.Transform
	state rasterState
	stack []rasterState
}

// NewRasterBackend returns a backend that draws into dst, which covers the
// content rect rect at the given contents scale.
func NewRasterBackend(dst *image.RGBA, rect geom.Rect, scale float64) *RasterBackend {
	if scale <= 0 {
		scale = 1
	}
	return &RasterBackend{Dst: dst, Rect: rect, Scale: scale}
}

// Begin implements Backend.
func (b *RasterBackend) Begin(geom.Rect) error {
	b.base = geom.Translation(float64(-b.Rect.X), float64(-b.Rect.Y)).Multiply(geom.Scaling(b.Scale, b.Scale))
	b.state = rasterState{transform: geom.Identity(), clip: b.Dst.Bounds()}
	b.stack = b.stack[:0]
	return nil
}

// End implements Backend.
func (b *RasterBackend) End() error { return nil }

// Save implements Backend.
func (b *RasterBackend) Save() { b.stack = append(b.stack, b.state) }

// Restore implements Backend.
func (b *RasterBackend) Restore() {
	if len(b.stack) == 0 {
		return
	}
	b.state = b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
}

// SetTransform implements Backend.
func (b *RasterBackend) SetTransform(t geom.Transform) { b.state.transform = t }

func (b *RasterBackend) device() geom.Transform {
	return b.base.Multiply(b.state.transform)
}

// ClipRect implements Backend.
func (b *RasterBackend) ClipRect(r geom.RectF) {
	d := b.device().MapRectF(r)
	clip := image.Rect(
		int(math.Round(d.X)), int(math.Round(d.Y)),
		int(math.Round(d.Right())), int(math.Round(d.Bottom())),
	)
	b.state.clip = b.state.clip.Intersect(clip)
}

// FillRect implements Backend.
func (b *RasterBackend) FillRect(r geom.RectF, c gputypes.Color) {
	if r.IsEmpty() || c.A <= 0 || b.state.clip.Empty() {
		return
	}
	src := image.NewUniform(toNRGBA(c))
	m := b.device()
	if m.B == 0 && m.D == 0 {
		d := m.MapRectF(r)
		px := image.Rect(
			int(math.Round(d.X)), int(math.Round(d.Y)),
			int(math.Round(d.Right())), int(math.Round(d.Bottom())),
		).Intersect(b.state.clip)
		if !px.Empty() {
			xdraw.Draw(b.Dst, px, src, image.Point{}, xdraw.Over)
		}
		return
	}

	inv, ok := m.Inverse()
	if !ok {
		return
	}
	box := m.MapRectF(r).ToEnclosingRect()
	bbox := image.Rect(box.X, box.Y, box.Right(), box.Bottom()).Intersect(b.state.clip)
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
	xdraw.DrawMask(b.Dst, bbox, src, image.Point{}, mask, bbox.Min, xdraw.Over)
}

// DrawImage implements Backend.
func (b *RasterBackend) DrawImage(img image.Image) {
	if img == nil || b.state.clip.Empty() {
		return
	}
	dst, ok := b.Dst.SubImage(b.state.clip).(*image.RGBA)
	if !ok {
		return
	}
	m := b.device()
	if m.IsTranslation() && m.C == math.Trunc(m.C) && m.F == math.Trunc(m.F) {
		sb := img.Bounds()
		at := image.Pt(int(m.C), int(m.F))
		xdraw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(sb.Size())}, img, sb.Min, xdraw.Over)
		return
	}
	aff := f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F}
	xdraw.BiLinear.Transform(dst, aff, img, img.Bounds(), xdraw.Over, nil)
}

func toNRGBA(c gputypes.Color) color.NRGBA {
	return color.NRGBA{
		R: unit8(c.R),
		G: unit8(c.G),
		B: unit8(c.B),
		A: unit8(c.A),
	}
}

func unit8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*255 + 0.5)
}

// Raster replays l into dst, which covers content rect rect at scale.
func (l *DisplayList) Raster(dst *image.RGBA, rect geom.Rect, scale float64) error {
	return l.Playback(NewRasterBackend(dst, rect, scale))
}
