// Package resource tracks the resources a compositor draws with: bitmaps,
// mailbox textures handed over by the producer, and UI resources.
//
// The impl side owns a Provider. Resources referenced by a frame are
// exported to the parent compositor with PrepareSendToParent and come back
// through ReceiveReturnsFromParent; a resource deleted while exported is
// only released once every export has been returned.
package resource

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// Errors returned by Provider.
var (
	ErrUnknownResource = errors.New("resource: unknown resource")
	ErrResourceLocked  = errors.New("resource: resource is locked for read")
)

type entry struct {
	id        quad.ResourceID
	size      geom.Size
	format    gputypes.TextureFormat
	bitmap    *image.RGBA
	mailbox   quad.Mailbox
	syncToken quad.SyncToken
	release   *ReleaseCallback

	lockCount         int
	exportCount       int
	markedForDeletion bool
	lost              bool
}

func (e *entry) transferable() quad.TransferableResource {
	return quad.TransferableResource{
		ID:         e.id,
		Format:     e.format,
		Size:       e.size,
		Mailbox:    e.mailbox,
		SyncToken:  e.syncToken,
		IsSoftware: e.bitmap != nil,
	}
}

// Provider allocates resource ids and tracks their lifetime.
// It is safe for concurrent use; returns may arrive from the goroutine
// that talks to the parent compositor.
type Provider struct {
	mu        sync.Mutex
	nextID    quad.ResourceID
	resources map[quad.ResourceID]*entry
}

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{
		nextID:    1,
		resources: make(map[quad.ResourceID]*entry),
	}
}

// CreateBitmap allocates a software resource backed by img. A nil img
// allocates a transparent bitmap of the given size.
func (p *Provider) CreateBitmap(size geom.Size, img *image.RGBA) quad.ResourceID {
	if img == nil {
		img = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocLocked()
	p.resources[id] = &entry{
		id:     id,
		size:   size,
		format: gputypes.TextureFormatRGBA8Unorm,
		bitmap: img,
	}
	return id
}

// CreateFromTextureMailbox wraps a mailbox handed over by the producer.
// release runs once the resource is deleted and no longer exported.
func (p *Provider) CreateFromTextureMailbox(mb TextureMailbox, release *ReleaseCallback) quad.ResourceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocLocked()
	p.resources[id] = &entry{
		id:        id,
		size:      mb.Size,
		format:    mb.Format,
		bitmap:    mb.Bitmap,
		mailbox:   mb.Mailbox,
		syncToken: mb.SyncToken,
		release:   release,
	}
	return id
}

func (p *Provider) allocLocked() quad.ResourceID {
	id := p.nextID
	p.nextID++
	return id
}

// SetPixels replaces the bitmap of a software resource.
func (p *Provider) SetPixels(id quad.ResourceID, img *image.RGBA) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	if e.lockCount > 0 {
		return fmt.Errorf("%w: %d", ErrResourceLocked, id)
	}
	e.bitmap = img
	e.size = geom.Size{Width: img.Rect.Dx(), Height: img.Rect.Dy()}
	return nil
}

// Bitmap returns the pixels of a software resource.
func (p *Provider) Bitmap(id quad.ResourceID) (*image.RGBA, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok || e.bitmap == nil || e.lost {
		return nil, false
	}
	return e.bitmap, true
}

// LockForRead pins a resource while a draw samples it.
func (p *Provider) LockForRead(id quad.ResourceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownResource, id)
	}
	e.lockCount++
	return nil
}

// UnlockForRead releases a LockForRead.
func (p *Provider) UnlockForRead(id quad.ResourceID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok || e.lockCount == 0 {
		return
	}
	e.lockCount--
	p.maybeDeleteLocked(e)
}

// Info returns the transferable description of a resource.
func (p *Provider) Info(id quad.ResourceID) (quad.TransferableResource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return quad.TransferableResource{}, false
	}
	return e.transferable(), true
}

// InUseByConsumer reports whether the resource is exported or locked.
func (p *Provider) InUseByConsumer(id quad.ResourceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	return ok && (e.exportCount > 0 || e.lockCount > 0)
}

// DeleteResource releases a resource. Deletion of a resource that is
// exported or locked is deferred until it is returned or unlocked.
func (p *Provider) DeleteResource(id quad.ResourceID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.resources[id]
	if !ok {
		return
	}
	e.markedForDeletion = true
	p.maybeDeleteLocked(e)
}

func (p *Provider) maybeDeleteLocked(e *entry) {
	if !e.markedForDeletion || e.exportCount > 0 || e.lockCount > 0 {
		return
	}
	delete(p.resources, e.id)
	if e.release != nil {
		e.release.Run(e.syncToken, e.lost)
	}
}

// PrepareSendToParent marks ids as exported and returns the resources that
// were not exported yet. Resources already held by the parent are counted
// but not sent again.
func (p *Provider) PrepareSendToParent(ids []quad.ResourceID) []quad.TransferableResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []quad.TransferableResource
	for _, id := range ids {
		e, ok := p.resources[id]
		if !ok {
			cc.Logger().Warn("resource: export of unknown resource", "id", id)
			continue
		}
		if e.exportCount == 0 {
			out = append(out, e.transferable())
		}
		e.exportCount++
	}
	return out
}

// ReceiveReturnsFromParent takes back exported resources.
func (p *Provider) ReceiveReturnsFromParent(returns []quad.ReturnedResource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range returns {
		e, ok := p.resources[r.ID]
		if !ok {
			continue
		}
		e.exportCount = max(0, e.exportCount-r.Count)
		if r.SyncToken.HasData() {
			e.syncToken = r.SyncToken
		}
		e.lost = e.lost || r.Lost
		p.maybeDeleteLocked(e)
	}
}

// DidLoseOutputSurface forgets every export: the parent is gone and will
// never return them. Exported resources are marked lost.
func (p *Provider) DidLoseOutputSurface() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.resources {
		if e.exportCount > 0 {
			e.lost = true
			e.exportCount = 0
		}
		p.maybeDeleteLocked(e)
	}
}

// ExportCount returns the number of outstanding exports of id.
func (p *Provider) ExportCount(id quad.ResourceID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.resources[id]; ok {
		return e.exportCount
	}
	return 0
}

// Len returns the number of live resources.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}
