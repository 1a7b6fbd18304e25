// Package geom provides the integer and floating point geometry used by
// the compositor: rectangles in layer, target and screen space and 2D
// affine transforms between them.
package geom

import (
	"fmt"
	"math"
)

// Size is an integer width and height.
type Size struct {
	Width, Height int
}

// IsEmpty reports whether the size has no area.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// String returns "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Point is a floating point position or offset.
type Point struct {
	X, Y float64
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// IsZero reports whether p is the origin.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Rect is an integer rectangle with its origin at (X, Y).
// Rects with non-positive width or height are empty.
type Rect struct {
	X, Y, Width, Height int
}

// RectFromSize returns the rect at the origin with the given size.
func RectFromSize(s Size) Rect {
	return Rect{Width: s.Width, Height: s.Height}
}

// IsEmpty reports whether the rect has no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Size returns the rect size.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Offset returns r translated by (dx, dy).
func (r Rect) Offset(dx, dy int) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Union returns the smallest rect containing both r and o.
// Empty rects do not contribute.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x := min(r.X, o.X)
	y := min(r.Y, o.Y)
	return Rect{
		X:      x,
		Y:      y,
		Width:  max(r.Right(), o.Right()) - x,
		Height: max(r.Bottom(), o.Bottom()) - y,
	}
}

// Intersect returns the overlap of r and o, or the zero rect.
func (r Rect) Intersect(o Rect) Rect {
	x := max(r.X, o.X)
	y := max(r.Y, o.Y)
	right := min(r.Right(), o.Right())
	bottom := min(r.Bottom(), o.Bottom())
	if right <= x || bottom <= y {
		return Rect{}
	}
	return Rect{X: x, Y: y, Width: right - x, Height: bottom - y}
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// Contains reports whether o lies entirely inside r.
// An empty o is contained in any rect.
func (r Rect) Contains(o Rect) bool {
	if o.IsEmpty() {
		return true
	}
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// ToRectF converts r to floating point.
func (r Rect) ToRectF() RectF {
	return RectF{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

// ScaleToEnclosing scales r by s and returns the smallest enclosing integer rect.
func (r Rect) ScaleToEnclosing(s float64) Rect {
	if s == 1 {
		return r
	}
	return RectF{
		X:      float64(r.X) * s,
		Y:      float64(r.Y) * s,
		Width:  float64(r.Width) * s,
		Height: float64(r.Height) * s,
	}.ToEnclosingRect()
}

// String returns "x,y WxH".
func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// RectF is a floating point rectangle.
type RectF struct {
	X, Y, Width, Height float64
}

// IsEmpty reports whether the rect has no area.
func (r RectF) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the right edge.
func (r RectF) Right() float64 { return r.X + r.Width }

// Bottom returns the bottom edge.
func (r RectF) Bottom() float64 { return r.Y + r.Height }

// Union returns the smallest rect containing both r and o.
func (r RectF) Union(o RectF) RectF {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x := math.Min(r.X, o.X)
	y := math.Min(r.Y, o.Y)
	return RectF{
		X:      x,
		Y:      y,
		Width:  math.Max(r.Right(), o.Right()) - x,
		Height: math.Max(r.Bottom(), o.Bottom()) - y,
	}
}

// ToEnclosingRect returns the smallest integer rect containing r.
// Coordinates within 1e-6 of an integer snap to it so that exact
// transforms of integer rects stay exact.
func (r RectF) ToEnclosingRect() Rect {
	if r.IsEmpty() {
		return Rect{}
	}
	x := int(math.Floor(r.X + 1e-6))
	y := int(math.Floor(r.Y + 1e-6))
	right := int(math.Ceil(r.Right() - 1e-6))
	bottom := int(math.Ceil(r.Bottom() - 1e-6))
	return Rect{X: x, Y: y, Width: right - x, Height: bottom - y}
}
