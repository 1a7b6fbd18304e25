package memory

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/cc/quad"
)

// ErrUnknownMailbox is returned when a mailbox names no texture, for
// example after its producer deleted it.
var ErrUnknownMailbox = errors.New("memory: unknown mailbox")

// MailboxManager maps mailbox names to textures, standing in for the GPU
// process that shares textures between contexts.
type MailboxManager struct {
	mu       sync.Mutex
	next     int
	release  uint64
	textures map[string]*Texture
	fetches  int
}

// NewMailboxManager returns an empty manager.
func NewMailboxManager() *MailboxManager {
	return &MailboxManager{textures: make(map[string]*Texture)}
}

// ProduceTexture shares img under a new mailbox. The returned token must
// be waited on before the texture is sampled.
func (m *MailboxManager) ProduceTexture(img *image.RGBA) (quad.Mailbox, quad.SyncToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.release++
	name := fmt.Sprintf("mailbox-%d", m.next)
	m.textures[name] = NewTexture(img)
	return quad.Mailbox{Name: name}, quad.SyncToken{Namespace: 1, CommandBufferID: 1, Release: m.release}
}

// Delete forgets mb. Later fetches fail with ErrUnknownMailbox.
func (m *MailboxManager) Delete(mb quad.Mailbox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.textures, mb.Name)
}

// FetchTexture resolves the mailbox of r.
func (m *MailboxManager) FetchTexture(r quad.TransferableResource) (gpucontext.Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	tex, ok := m.textures[r.Mailbox.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMailbox, r.Mailbox.Name)
	}
	return tex, nil
}

// FetchCount returns the number of FetchTexture calls.
func (m *MailboxManager) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}
