package parallel

import (
	"image"
	"sync"
)

// BitmapPool recycles full-size tile bitmaps. Edge tiles are allocated
// at their clipped size and not pooled.
//
// Thread safety: BitmapPool is safe for concurrent use.
type BitmapPool struct {
	tileSize int
	pool     sync.Pool
}

// NewBitmapPool returns a pool of tileSize x tileSize bitmaps.
func NewBitmapPool(tileSize int) *BitmapPool {
	p := &BitmapPool{tileSize: tileSize}
	p.pool.New = func() any {
		return image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	}
	return p
}

// Get returns a cleared bitmap of w x h pixels.
func (p *BitmapPool) Get(w, h int) *image.RGBA {
	if w != p.tileSize || h != p.tileSize {
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}
	img := p.pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Put returns a bitmap obtained from Get. Bitmaps of another size are
// dropped.
func (p *BitmapPool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Dx() != p.tileSize || img.Rect.Dy() != p.tileSize {
		return
	}
	p.pool.Put(img)
}
