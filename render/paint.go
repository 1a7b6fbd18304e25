// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// PremultipliedColor converts c, scaled by opacity, to a premultiplied
// RGBA color.
func PremultipliedColor(c gputypes.Color, opacity float64) color.RGBA {
	return withOpacity(c.R, c.G, c.B, c.A, opacity)
}

// FillRect fills r, given in the space m maps from, clipped to clip.
func FillRect(dst *image.RGBA, clip image.Rectangle, m geom.Transform, r geom.RectF, c color.RGBA) {
	fillRect(dst, clip, m, r, c)
}

// DrawImage draws the sr part of src onto dstRect, given in the space m
// maps from, clipped to clip.
func DrawImage(dst *image.RGBA, clip image.Rectangle, m geom.Transform, dstRect geom.Rect, src image.Image, sr image.Rectangle, opacity float64, nearest, flipY bool) {
	drawSource(dst, clip, m, dstRect, src, sr, opacity, nearest, flipY)
}

// ConvertYUV converts Y, U and V planes, stored in the red channel, to
// RGBA. a is an optional alpha plane. sub selects a normalized part of
// the Y plane; an empty sub selects all of it.
func ConvertYUV(cs quad.YUVColorSpace, yp, up, vp, ap *image.RGBA, sub geom.RectF) *image.RGBA {
	yb := yp.Bounds()
	src := yb
	if !sub.IsEmpty() {
		src = image.Rect(
			yb.Min.X+int(sub.X*float64(yb.Dx())),
			yb.Min.Y+int(sub.Y*float64(yb.Dy())),
			yb.Min.X+int(math.Ceil(sub.Right()*float64(yb.Dx()))),
			yb.Min.Y+int(math.Ceil(sub.Bottom()*float64(yb.Dy()))),
		).Intersect(yb)
	}
	ub := up.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	for y := src.Min.Y; y < src.Max.Y; y++ {
		for x := src.Min.X; x < src.Max.X; x++ {
			ux := ub.Min.X + (x-yb.Min.X)*ub.Dx()/yb.Dx()
			uy := ub.Min.Y + (y-yb.Min.Y)*ub.Dy()/yb.Dy()
			rr, gg, bb := yuvToRGB(cs,
				float64(yp.RGBAAt(x, y).R), float64(up.RGBAAt(ux, uy).R), float64(vp.RGBAAt(ux, uy).R))
			a := 1.0
			if ap != nil {
				a = float64(ap.RGBAAt(x, y).R) / 255
			}
			out.SetRGBA(x-src.Min.X, y-src.Min.Y, toRGBAColor(rr/255, gg/255, bb/255, a))
		}
	}
	return out
}
