package parallel

import "github.com/gogpu/cc/geom"

// Grid divides a content rect of width x height pixels into square tiles of
// TileSize pixels. Edge tiles are clipped to the content bounds.
type Grid struct {
	width, height int
	tileSize      int
	cols, rows    int
}

// NewGrid returns the grid covering width x height. A non-positive size
// yields an empty grid.
func NewGrid(width, height, tileSize int) Grid {
	if tileSize <= 0 {
		panic("parallel: tile size must be positive")
	}
	g := Grid{tileSize: tileSize}
	if width <= 0 || height <= 0 {
		return g
	}
	g.width, g.height = width, height
	g.cols = (width + tileSize - 1) / tileSize
	g.rows = (height + tileSize - 1) / tileSize
	return g
}

// Cols returns the number of tile columns.
func (g Grid) Cols() int { return g.cols }

// Rows returns the number of tile rows.
func (g Grid) Rows() int { return g.rows }

// TileSize returns the tile edge length.
func (g Grid) TileSize() int { return g.tileSize }

// Len returns the number of tiles.
func (g Grid) Len() int { return g.cols * g.rows }

// IsEmpty reports whether the grid has no tiles.
func (g Grid) IsEmpty() bool { return g.Len() == 0 }

// TileRect returns the content rect of a tile, clipped to the content.
func (g Grid) TileRect(t TileIndex) geom.Rect {
	r := geom.Rect{X: t.Col * g.tileSize, Y: t.Row * g.tileSize, Width: g.tileSize, Height: g.tileSize}
	return r.Intersect(geom.Rect{Width: g.width, Height: g.height})
}

// Cover returns the range of tiles intersecting r, and false if none do.
func (g Grid) Cover(r geom.Rect) (c0, r0, c1, r1 int, ok bool) {
	r = r.Intersect(geom.Rect{Width: g.width, Height: g.height})
	if r.IsEmpty() {
		return 0, 0, 0, 0, false
	}
	return r.X / g.tileSize, r.Y / g.tileSize, (r.Right() - 1) / g.tileSize, (r.Bottom() - 1) / g.tileSize, true
}

// Tiles returns the tiles intersecting r in row-major order.
func (g Grid) Tiles(r geom.Rect) []TileIndex {
	c0, r0, c1, r1, ok := g.Cover(r)
	if !ok {
		return nil
	}
	out := make([]TileIndex, 0, (c1-c0+1)*(r1-r0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			out = append(out, TileIndex{Col: col, Row: row})
		}
	}
	return out
}

// NewSet returns an empty TileSet sized for the grid.
func (g Grid) NewSet() *TileSet {
	return NewTileSet(g.cols, g.rows)
}
