package resource

import (
	"image"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// TextureMailbox is a texture produced outside the compositor and handed
// to it by a texture or video layer. Bitmap is set for software-backed
// mailboxes.
type TextureMailbox struct {
	Mailbox   quad.Mailbox
	SyncToken quad.SyncToken
	Size      geom.Size
	Format    gputypes.TextureFormat
	Bitmap    *image.RGBA
}

// IsValid reports whether the mailbox names a texture or carries pixels.
func (m TextureMailbox) IsValid() bool {
	return !m.Mailbox.IsZero() || m.Bitmap != nil
}

// ReleaseCallback gives a mailbox back to its producer. It runs at most
// once, with the sync token the producer must wait on before reusing the
// texture and whether the texture was lost.
type ReleaseCallback struct {
	once sync.Once
	fn   func(token quad.SyncToken, lost bool)
}

// NewReleaseCallback wraps fn.
func NewReleaseCallback(fn func(token quad.SyncToken, lost bool)) *ReleaseCallback {
	return &ReleaseCallback{fn: fn}
}

// Run calls the callback. Later calls are ignored.
func (c *ReleaseCallback) Run(token quad.SyncToken, lost bool) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.fn != nil {
			c.fn(token, lost)
		}
	})
}
