// Package tiles rasterizes picture layer content into tile resources.
//
// A Tiling covers the content of one picture layer impl at one contents
// scale. Invalidations mark tiles dirty; Manager.PrepareTiles rasterizes
// the dirty tiles that intersect a requested rect on the raster worker
// pool and swaps the results in as new resources.
package tiles

import (
	"image"
	"sync"

	"github.com/gogpu/cc/displaylist"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/parallel"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
)

// TileIndex addresses a tile by column and row.
type TileIndex = parallel.TileIndex

// Tile is a rasterized tile.
type Tile struct {
	Index    TileIndex
	Rect     geom.Rect // content space
	Resource quad.ResourceID
}

// Tiling tracks which tiles of a layer's content are rasterized.
//
// Thread safety: Tiling is safe for concurrent use.
type Tiling struct {
	mu       sync.Mutex
	provider *resource.Provider
	grid     parallel.Grid
	scale    float64
	bounds   geom.Size // layer space
	list     *displaylist.DisplayList
	tiles    map[TileIndex]*Tile
	dirty    *parallel.TileSet
}

// NewTiling returns an empty tiling whose resources live in provider.
func NewTiling(provider *resource.Provider, tileSize int) *Tiling {
	return &Tiling{
		provider: provider,
		grid:     parallel.NewGrid(0, 0, tileSize),
		scale:    1,
		tiles:    make(map[TileIndex]*Tile),
	}
}

// SetContent installs a new display list covering bounds at the given
// contents scale. invalidation is in layer space. A change of bounds or
// scale discards every tile.
func (t *Tiling) SetContent(list *displaylist.DisplayList, bounds geom.Size, scale float64, invalidation geom.Rect) {
	if scale <= 0 {
		scale = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = list
	if bounds != t.bounds || scale != t.scale {
		t.bounds = bounds
		t.scale = scale
		content := geom.RectFromSize(bounds).ScaleToEnclosing(scale)
		t.grid = parallel.NewGrid(content.Width, content.Height, t.grid.TileSize())
		t.releaseLocked()
		t.dirty = t.grid.NewSet()
		if t.dirty != nil {
			t.dirty.AddAll()
		}
		return
	}
	t.invalidateLocked(invalidation)
}

// Invalidate marks the tiles under the layer-space rect r dirty.
func (t *Tiling) Invalidate(r geom.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalidateLocked(r)
}

func (t *Tiling) invalidateLocked(r geom.Rect) {
	if t.dirty == nil || r.IsEmpty() {
		return
	}
	if c0, r0, c1, r1, ok := t.grid.Cover(r.ScaleToEnclosing(t.scale)); ok {
		t.dirty.AddRange(c0, r0, c1, r1)
	}
}

// ContentRect returns the content-space rect the tiling covers.
func (t *Tiling) ContentRect() geom.Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	return geom.RectFromSize(t.bounds).ScaleToEnclosing(t.scale)
}

// Scale returns the contents scale.
func (t *Tiling) Scale() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scale
}

// DisplayList returns the installed display list.
func (t *Tiling) DisplayList() *displaylist.DisplayList {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.list
}

// TileSize returns the tile edge length.
func (t *Tiling) TileSize() int {
	return t.grid.TileSize()
}

// TilesIn returns the indices and content rects of every tile that
// intersects the content-space rect r, rasterized or not.
func (t *Tiling) TilesIn(r geom.Rect) []Tile {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.grid.Tiles(r)
	out := make([]Tile, 0, len(idx))
	for _, i := range idx {
		tile := Tile{Index: i, Rect: t.grid.TileRect(i)}
		if ready, ok := t.tiles[i]; ok && !t.dirty.Has(i.Col, i.Row) {
			tile.Resource = ready.Resource
		}
		out = append(out, tile)
	}
	return out
}

// IsReady reports whether every tile intersecting the content rect r is
// rasterized from the current display list.
func (t *Tiling) IsReady(r geom.Rect) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, i := range t.grid.Tiles(r) {
		if _, ok := t.tiles[i]; !ok || t.dirty.Has(i.Col, i.Row) {
			return false
		}
	}
	return true
}

// ReadyTiles returns the number of clean rasterized tiles.
func (t *Tiling) ReadyTiles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.tiles {
		if !t.dirty.Has(i.Col, i.Row) {
			n++
		}
	}
	return n
}

// Release deletes every tile resource. The tiling stays usable; all tiles
// become dirty.
func (t *Tiling) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
	if t.dirty != nil {
		t.dirty.AddAll()
	}
}

func (t *Tiling) releaseLocked() {
	for i, tile := range t.tiles {
		t.provider.DeleteResource(tile.Resource)
		delete(t.tiles, i)
	}
}

// work is one tile to rasterize, captured under the lock.
type work struct {
	tiling *Tiling
	index  TileIndex
	rect   geom.Rect
	list   *displaylist.DisplayList
	scale  float64
	img    *image.RGBA
}

// collect returns the dirty tiles intersecting r.
func (t *Tiling) collect(r geom.Rect) []*work {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*work
	for _, i := range t.grid.Tiles(r) {
		_, have := t.tiles[i]
		if have && !t.dirty.Has(i.Col, i.Row) {
			continue
		}
		out = append(out, &work{tiling: t, index: i, rect: t.grid.TileRect(i), list: t.list, scale: t.scale})
	}
	return out
}

// install swaps a rasterized bitmap in. Results rastered from a list that
// has since been replaced, or for a tile invalidated again, are dropped by
// returning false.
func (t *Tiling) install(w *work, id quad.ResourceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w.list != t.list || w.scale != t.scale || w.rect != t.grid.TileRect(w.index) {
		return false
	}
	if old, ok := t.tiles[w.index]; ok {
		t.provider.DeleteResource(old.Resource)
	}
	t.tiles[w.index] = &Tile{Index: w.index, Rect: w.rect, Resource: id}
	t.dirty.Remove(w.index.Col, w.index.Row)
	return true
}
