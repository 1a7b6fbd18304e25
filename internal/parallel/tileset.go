package parallel

import (
	"math/bits"
	"sync/atomic"
)

// TileIndex addresses a tile by column and row.
type TileIndex struct {
	Col, Row int
}

// TileSet is a set of tiles of a cols x rows grid stored as an atomic
// bitmap, one bit per tile. Tiles are marked from the goroutine that
// invalidates content and taken by the goroutine that schedules raster.
//
// All methods are safe for concurrent use.
type TileSet struct {
	words []atomic.Uint64
	cols  int
	rows  int
}

// NewTileSet returns an empty set. It returns nil for an empty grid.
func NewTileSet(cols, rows int) *TileSet {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	return &TileSet{
		words: make([]atomic.Uint64, (cols*rows+63)/64),
		cols:  cols,
		rows:  rows,
	}
}

func (s *TileSet) bit(col, row int) (word int, mask uint64, ok bool) {
	if col < 0 || col >= s.cols || row < 0 || row >= s.rows {
		return 0, 0, false
	}
	idx := row*s.cols + col
	return idx / 64, 1 << (idx & 63), true
}

// Add adds a tile. Out of range tiles are ignored.
func (s *TileSet) Add(col, row int) {
	if w, m, ok := s.bit(col, row); ok {
		s.words[w].Or(m)
	}
}

// AddRange adds every tile with col in [c0, c1] and row in [r0, r1].
func (s *TileSet) AddRange(c0, r0, c1, r1 int) {
	c0, r0 = max(c0, 0), max(r0, 0)
	c1, r1 = min(c1, s.cols-1), min(r1, s.rows-1)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			s.Add(col, row)
		}
	}
}

// AddAll adds every tile of the grid.
func (s *TileSet) AddAll() {
	total := s.cols * s.rows
	full := total / 64
	for i := 0; i < full; i++ {
		s.words[i].Store(^uint64(0))
	}
	if rem := total % 64; rem > 0 {
		s.words[full].Store(uint64(1)<<rem - 1)
	}
}

// Remove removes a tile.
func (s *TileSet) Remove(col, row int) {
	if w, m, ok := s.bit(col, row); ok {
		s.words[w].And(^m)
	}
}

// Clear empties the set.
func (s *TileSet) Clear() {
	for i := range s.words {
		s.words[i].Store(0)
	}
}

// Has reports whether a tile is in the set.
func (s *TileSet) Has(col, row int) bool {
	w, m, ok := s.bit(col, row)
	return ok && s.words[w].Load()&m != 0
}

// IsEmpty reports whether the set is empty.
func (s *TileSet) IsEmpty() bool {
	for i := range s.words {
		if s.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of tiles in the set.
func (s *TileSet) Len() int {
	n := 0
	for i := range s.words {
		n += bits.OnesCount64(s.words[i].Load())
	}
	return n
}

// Take removes and returns every tile, in row-major order.
func (s *TileSet) Take() []TileIndex {
	var out []TileIndex
	for w := range s.words {
		s.appendWord(&out, w, s.words[w].Swap(0))
	}
	return out
}

// Each calls fn for every tile in row-major order without removing it.
func (s *TileSet) Each(fn func(TileIndex)) {
	var out []TileIndex
	for w := range s.words {
		s.appendWord(&out, w, s.words[w].Load())
	}
	for _, t := range out {
		fn(t)
	}
}

func (s *TileSet) appendWord(out *[]TileIndex, w int, word uint64) {
	total := s.cols * s.rows
	for word != 0 {
		b := bits.TrailingZeros64(word)
		idx := w*64 + b
		if idx >= total {
			return
		}
		*out = append(*out, TileIndex{Col: idx % s.cols, Row: idx / s.cols})
		word &^= 1 << b
	}
}

// Cols returns the grid width in tiles.
func (s *TileSet) Cols() int { return s.cols }

// Rows returns the grid height in tiles.
func (s *TileSet) Rows() int { return s.rows }
