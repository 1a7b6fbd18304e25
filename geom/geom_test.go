package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 5, 5}, Rect{0, 0, 25, 25}},
		{"nested", Rect{0, 0, 25, 25}, Rect{0, 0, 15, 15}, Rect{0, 0, 25, 25}},
		{"empty left", Rect{}, Rect{3, 4, 5, 6}, Rect{3, 4, 5, 6}},
		{"empty right", Rect{3, 4, 5, 6}, Rect{1, 1, 0, 9}, Rect{3, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Union(tt.b))
			assert.Equal(t, tt.want, tt.b.Union(tt.a))
		})
	}
}

func TestRectIntersect(t *testing.T) {
	a := Rect{0, 0, 50, 50}
	assert.Equal(t, Rect{10, 10, 20, 20}, a.Intersect(Rect{10, 10, 20, 20}))
	assert.Equal(t, Rect{40, 40, 10, 10}, a.Intersect(Rect{40, 40, 30, 30}))
	assert.True(t, a.Intersect(Rect{60, 0, 10, 10}).IsEmpty())
	assert.False(t, a.Intersects(Rect{50, 0, 10, 10}), "touching edges do not intersect")
}

func TestRectContains(t *testing.T) {
	outer := Rect{0, 0, 50, 50}
	assert.True(t, outer.Contains(Rect{10, 10, 20, 20}))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(Rect{40, 40, 20, 20}))
	assert.True(t, outer.Contains(Rect{}), "empty rect is contained everywhere")
}

func TestRectScaleToEnclosing(t *testing.T) {
	r := Rect{1, 1, 3, 3}
	assert.Equal(t, Rect{4, 4, 12, 12}, r.ScaleToEnclosing(4))
	assert.Equal(t, Rect{0, 0, 2, 2}, r.ScaleToEnclosing(0.5))
	assert.Equal(t, r, r.ScaleToEnclosing(1))
}

func TestTransformMultiplyOrder(t *testing.T) {
	// Scale then translate: translation is not scaled.
	m := Translation(10, 0).Multiply(Scaling(2, 2))
	p := m.MapPoint(Point{X: 1, Y: 1})
	assert.Equal(t, Point{X: 12, Y: 2}, p)

	// Translate then scale: translation is scaled.
	m = Scaling(2, 2).Multiply(Translation(10, 0))
	p = m.MapPoint(Point{X: 1, Y: 1})
	assert.Equal(t, Point{X: 22, Y: 2}, p)
}

func TestTransformMapRect(t *testing.T) {
	assert.Equal(t, Rect{5, 5, 10, 10}, Translation(5, 5).MapRect(Rect{0, 0, 10, 10}))
	assert.Equal(t, Rect{0, 0, 40, 40}, Scaling(4, 4).MapRect(Rect{0, 0, 10, 10}))

	rotated := Rotation(math.Pi / 2).MapRect(Rect{0, 0, 10, 20})
	assert.Equal(t, Rect{-20, 0, 20, 10}, rotated)
}

func TestTransformInverse(t *testing.T) {
	m := Translation(3, 4).Multiply(Scaling(2, 5))
	inv, ok := m.Inverse()
	assert.True(t, ok)
	got := m.Multiply(inv)
	assert.InDelta(t, 1, got.A, 1e-12)
	assert.InDelta(t, 1, got.E, 1e-12)
	assert.InDelta(t, 0, got.C, 1e-12)
	assert.InDelta(t, 0, got.F, 1e-12)

	_, ok = Scaling(0, 1).Inverse()
	assert.False(t, ok)
	assert.False(t, Scaling(0, 1).IsInvertible())
}

func TestTransformPredicates(t *testing.T) {
	assert.True(t, Identity().IsIdentity())
	assert.True(t, Translation(1, 2).IsTranslation())
	assert.False(t, Scaling(2, 1).IsTranslation())
	assert.Equal(t, Point{X: 1, Y: 2}, Translation(1, 2).Offset())
}
