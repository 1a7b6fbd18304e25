package resource

import (
	"image"
	"sync"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// UIResourceID names a UI resource across commits. Zero is invalid.
type UIResourceID int

// UIResourceBitmap is the content of a UI resource.
type UIResourceBitmap struct {
	Image  *image.RGBA
	Opaque bool
}

// UIResourceClient produces the bitmap of a UI resource. resourceLost is
// set when the bitmap is requested again after the output surface was
// lost.
type UIResourceClient interface {
	UIResourceBitmap(id UIResourceID, resourceLost bool) UIResourceBitmap
}

// UIResourceRequestKind is the kind of a UIResourceRequest.
type UIResourceRequestKind uint8

// Request kinds.
const (
	UIResourceCreate UIResourceRequestKind = iota + 1
	UIResourceDelete
)

// UIResourceRequest is carried from the producer to the consumer by the
// next commit.
type UIResourceRequest struct {
	Kind   UIResourceRequestKind
	ID     UIResourceID
	Bitmap UIResourceBitmap
}

// UIResourceManager is the producer-side registry of UI resources. It is
// safe for concurrent use.
type UIResourceManager struct {
	mu       sync.Mutex
	nextID   UIResourceID
	clients  map[UIResourceID]UIResourceClient
	requests []UIResourceRequest
}

// NewUIResourceManager returns an empty manager.
func NewUIResourceManager() *UIResourceManager {
	return &UIResourceManager{
		nextID:  1,
		clients: make(map[UIResourceID]UIResourceClient),
	}
}

// Create registers client and queues a create request.
func (m *UIResourceManager) Create(client UIResourceClient) UIResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.clients[id] = client
	m.requests = append(m.requests, UIResourceRequest{
		Kind:   UIResourceCreate,
		ID:     id,
		Bitmap: client.UIResourceBitmap(id, false),
	})
	return id
}

// Delete unregisters a resource and queues a delete request.
func (m *UIResourceManager) Delete(id UIResourceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return
	}
	delete(m.clients, id)
	m.requests = append(m.requests, UIResourceRequest{Kind: UIResourceDelete, ID: id})
}

// RecreateAll queues a create request for every live resource, asking the
// clients for their bitmaps again. Called after the output surface was
// lost.
func (m *UIResourceManager) RecreateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		m.requests = append(m.requests, UIResourceRequest{
			Kind:   UIResourceCreate,
			ID:     id,
			Bitmap: client.UIResourceBitmap(id, true),
		})
	}
}

// HasRequests reports whether a commit is needed to deliver requests.
func (m *UIResourceManager) HasRequests() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests) > 0
}

// TakeRequests returns and clears the queued requests.
func (m *UIResourceManager) TakeRequests() []UIResourceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := m.requests
	m.requests = nil
	return reqs
}

// Len returns the number of live resources.
func (m *UIResourceManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// UIResourceTable is the consumer-side map from UI resource ids to
// provider resources. It is owned by the impl thread.
type UIResourceTable struct {
	provider *Provider
	ids      map[UIResourceID]quad.ResourceID
}

// NewUIResourceTable returns a table allocating from provider.
func NewUIResourceTable(provider *Provider) *UIResourceTable {
	return &UIResourceTable{provider: provider, ids: make(map[UIResourceID]quad.ResourceID)}
}

// Apply processes requests in order. A create for an existing id replaces
// the previous resource.
func (t *UIResourceTable) Apply(reqs []UIResourceRequest) {
	for _, r := range reqs {
		switch r.Kind {
		case UIResourceCreate:
			if old, ok := t.ids[r.ID]; ok {
				t.provider.DeleteResource(old)
			}
			var size geom.Size
			if r.Bitmap.Image != nil {
				size = geom.Size{Width: r.Bitmap.Image.Rect.Dx(), Height: r.Bitmap.Image.Rect.Dy()}
			}
			t.ids[r.ID] = t.provider.CreateBitmap(size, r.Bitmap.Image)
		case UIResourceDelete:
			if old, ok := t.ids[r.ID]; ok {
				t.provider.DeleteResource(old)
				delete(t.ids, r.ID)
			}
		}
	}
}

// ResourceID returns the provider resource of a UI resource.
func (t *UIResourceTable) ResourceID(id UIResourceID) (quad.ResourceID, bool) {
	rid, ok := t.ids[id]
	return rid, ok
}

// EvictAll deletes every resource. The producer recreates them with
// UIResourceManager.RecreateAll.
func (t *UIResourceTable) EvictAll() {
	for id, rid := range t.ids {
		t.provider.DeleteResource(rid)
		delete(t.ids, id)
	}
}

// Len returns the number of mapped UI resources.
func (t *UIResourceTable) Len() int {
	return len(t.ids)
}
