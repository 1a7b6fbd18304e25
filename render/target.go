// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/gogpu/gputypes"
)

// RenderTarget is where a frame is drawn.
type RenderTarget interface {
	Width() int
	Height() int
	Format() gputypes.TextureFormat

	// Image returns the CPU pixels of the target, or nil for GPU-only
	// targets.
	Image() *image.RGBA
}

// PixmapTarget is a CPU-backed render target using *image.RGBA.
//
// Example:
//
//	target := render.NewPixmapTarget(800, 600)
//	renderer.DrawFrame(frame, target)
//	img := target.Image()
type PixmapTarget struct {
	img *image.RGBA
}

// NewPixmapTarget creates a new CPU-backed render target.
func NewPixmapTarget(width, height int) *PixmapTarget {
	return &PixmapTarget{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// NewPixmapTargetFromImage wraps an existing *image.RGBA as a render target.
// The image is used directly without copying.
func NewPixmapTargetFromImage(img *image.RGBA) *PixmapTarget {
	return &PixmapTarget{img: img}
}

// Width returns the target width in pixels.
func (t *PixmapTarget) Width() int {
	return t.img.Bounds().Dx()
}

// Height returns the target height in pixels.
func (t *PixmapTarget) Height() int {
	return t.img.Bounds().Dy()
}

// Format returns the pixel format (RGBA8).
func (t *PixmapTarget) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Image returns the underlying *image.RGBA.
// The returned image shares memory with the target.
func (t *PixmapTarget) Image() *image.RGBA {
	return t.img
}

// Clear fills the entire target with c.
func (t *PixmapTarget) Clear(c gputypes.Color) {
	t.ClearRect(t.img.Bounds(), c)
}

// ClearRect replaces the pixels of r with c.
func (t *PixmapTarget) ClearRect(r image.Rectangle, c gputypes.Color) {
	draw.Draw(t.img, r, image.NewUniform(toRGBA(c)), image.Point{}, draw.Src)
}

// Resize reallocates the target if its size differs. The contents are
// not preserved; it reports whether a new image was allocated.
func (t *PixmapTarget) Resize(width, height int) bool {
	if t.Width() == width && t.Height() == height {
		return false
	}
	t.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return true
}

// Snapshot returns a copy of the pixels of r.
func (t *PixmapTarget) Snapshot(r image.Rectangle) *image.RGBA {
	r = r.Intersect(t.img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), t.img, r.Min, draw.Src)
	return out
}

// toRGBA converts a straight-alpha color to premultiplied RGBA8.
func toRGBA(c gputypes.Color) color.RGBA {
	a := clamp01(c.A)
	return color.RGBA{
		R: uint8(clamp01(c.R)*a*255 + 0.5),
		G: uint8(clamp01(c.G)*a*255 + 0.5),
		B: uint8(clamp01(c.B)*a*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Ensure PixmapTarget implements RenderTarget.
var _ RenderTarget = (*PixmapTarget)(nil)
