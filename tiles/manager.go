package tiles

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/parallel"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/resource"
	"github.com/gogpu/gputypes"
)

// ErrClosed is returned by PrepareTiles after Close.
var ErrClosed = errors.New("tiles: manager closed")

// Request asks for the tiles of Tiling that intersect Rect (content space).
type Request struct {
	Tiling *Tiling
	Rect   geom.Rect
}

// Stats counts raster work.
type Stats struct {
	Rasterized int
	Dropped    int
}

// Manager rasterizes tiles on a worker pool.
//
// PrepareTiles is called from the impl goroutine only.
type Manager struct {
	provider *resource.Provider
	pool     *parallel.WorkerPool
	bitmaps  *parallel.BitmapPool
	stats    Stats
}

// NewManager starts a manager with the given number of raster workers.
// If workers <= 0, GOMAXPROCS is used.
func NewManager(provider *resource.Provider, tileSize, workers int) *Manager {
	return &Manager{
		provider: provider,
		pool:     parallel.NewWorkerPool(workers),
		bitmaps:  parallel.NewBitmapPool(tileSize),
	}
}

// PrepareTiles rasterizes every dirty tile named by reqs and waits for the
// batch. The first raster error cancels the tiles not yet started.
func (m *Manager) PrepareTiles(ctx context.Context, reqs []Request) error {
	if !m.pool.IsRunning() {
		return ErrClosed
	}
	var batch []*work
	for _, r := range reqs {
		if r.Tiling == nil || r.Rect.IsEmpty() {
			continue
		}
		batch = append(batch, r.Tiling.collect(r.Rect)...)
	}
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range batch {
		g.Go(func() error {
			return m.submit(gctx, w)
		})
	}
	err := g.Wait()

	for _, w := range batch {
		if w.img == nil {
			continue
		}
		size := geom.Size{Width: w.rect.Width, Height: w.rect.Height}
		img := w.img
		id := m.provider.CreateFromTextureMailbox(resource.TextureMailbox{
			Size:   size,
			Format: gputypes.TextureFormatRGBA8Unorm,
			Bitmap: img,
		}, resource.NewReleaseCallback(func(quad.SyncToken, bool) {
			m.bitmaps.Put(img)
		}))
		if w.tiling.install(w, id) {
			m.stats.Rasterized++
		} else {
			m.stats.Dropped++
			m.provider.DeleteResource(id)
		}
	}
	cc.Logger().Debug("tiles: prepared", "tiles", len(batch), "err", err)
	return err
}

func (m *Manager) submit(ctx context.Context, w *work) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	ok := m.pool.Submit(func() {
		img := m.bitmaps.Get(w.rect.Width, w.rect.Height)
		if err := w.list.Raster(img, w.rect, w.scale); err != nil {
			m.bitmaps.Put(img)
			done <- fmt.Errorf("tiles: raster tile %v: %w", w.index, err)
			return
		}
		w.img = img
		done <- nil
	})
	if !ok {
		return ErrClosed
	}
	return <-done
}

// Stats returns cumulative raster counts.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Close stops the raster workers.
func (m *Manager) Close() {
	m.pool.Close()
}
