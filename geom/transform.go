package geom

import "math"

// Transform is a 2D affine transform in row-major 2x3 form:
//
//	| A  B  C |
//	| D  E  F |
//
// mapping (x, y) to (A*x + B*y + C, D*x + E*y + F).
//
// The zero Transform is degenerate; use Identity.
type Transform struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{A: 1, E: 1}
}

// Translation returns a translation by (x, y).
func Translation(x, y float64) Transform {
	return Transform{A: 1, C: x, E: 1, F: y}
}

// Scaling returns a scale by (sx, sy).
func Scaling(sx, sy float64) Transform {
	return Transform{A: sx, E: sy}
}

// Rotation returns a rotation by angle radians.
func Rotation(angle float64) Transform {
	cos, sin := math.Cos(angle), math.Sin(angle)
	return Transform{A: cos, B: -sin, D: sin, E: cos}
}

// Multiply returns t * o: o is applied first, then t.
func (t Transform) Multiply(o Transform) Transform {
	return Transform{
		A: t.A*o.A + t.B*o.D,
		B: t.A*o.B + t.B*o.E,
		C: t.A*o.C + t.B*o.F + t.C,
		D: t.D*o.A + t.E*o.D,
		E: t.D*o.B + t.E*o.E,
		F: t.D*o.C + t.E*o.F + t.F,
	}
}

// Translate returns t * Translation(x, y): the translation is applied
// first, in the local space of t.
func (t Transform) Translate(x, y float64) Transform {
	return t.Multiply(Translation(x, y))
}

// MapPoint applies t to p.
func (t Transform) MapPoint(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// MapRectF returns the bounding box of r mapped through t.
func (t Transform) MapRectF(r RectF) RectF {
	if r.IsEmpty() {
		return RectF{}
	}
	if t.IsTranslation() {
		return RectF{X: r.X + t.C, Y: r.Y + t.F, Width: r.Width, Height: r.Height}
	}
	p0 := t.MapPoint(Point{X: r.X, Y: r.Y})
	p1 := t.MapPoint(Point{X: r.Right(), Y: r.Y})
	p2 := t.MapPoint(Point{X: r.X, Y: r.Bottom()})
	p3 := t.MapPoint(Point{X: r.Right(), Y: r.Bottom()})
	minX := math.Min(math.Min(p0.X, p1.X), math.Min(p2.X, p3.X))
	minY := math.Min(math.Min(p0.Y, p1.Y), math.Min(p2.Y, p3.Y))
	maxX := math.Max(math.Max(p0.X, p1.X), math.Max(p2.X, p3.X))
	maxY := math.Max(math.Max(p0.Y, p1.Y), math.Max(p2.Y, p3.Y))
	return RectF{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// MapRect returns the smallest integer rect enclosing r mapped through t.
func (t Transform) MapRect(r Rect) Rect {
	return t.MapRectF(r.ToRectF()).ToEnclosingRect()
}

// Determinant returns the determinant of the linear part.
func (t Transform) Determinant() float64 {
	return t.A*t.E - t.B*t.D
}

// IsInvertible reports whether t has an inverse.
func (t Transform) IsInvertible() bool {
	return math.Abs(t.Determinant()) >= 1e-10
}

// Inverse returns the inverse of t and whether it exists.
func (t Transform) Inverse() (Transform, bool) {
	det := t.Determinant()
	if math.Abs(det) < 1e-10 {
		return Identity(), false
	}
	inv := 1 / det
	return Transform{
		A: t.E * inv,
		B: -t.B * inv,
		C: (t.B*t.F - t.C*t.E) * inv,
		D: -t.D * inv,
		E: t.A * inv,
		F: (t.C*t.D - t.A*t.F) * inv,
	}, true
}

// IsIdentity reports whether t is the identity.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// IsTranslation reports whether t only translates.
func (t Transform) IsTranslation() bool {
	return t.A == 1 && t.B == 0 && t.D == 0 && t.E == 1
}

// Offset returns the translation component.
func (t Transform) Offset() Point {
	return Point{X: t.C, Y: t.F}
}
