package delegated

import (
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/quad"
)

// TextureFetcher resolves an imported resource to a texture of the host
// renderer. It runs on the GPU runner.
type TextureFetcher interface {
	FetchTexture(r quad.TransferableResource) (gpucontext.Texture, error)
}

// TextureFetcherFunc adapts a function to TextureFetcher.
type TextureFetcherFunc func(r quad.TransferableResource) (gpucontext.Texture, error)

// FetchTexture implements TextureFetcher.
func (f TextureFetcherFunc) FetchTexture(r quad.TransferableResource) (gpucontext.Texture, error) {
	return f(r)
}

// mailboxTexture is one imported resource. importCount counts the frames
// that transferred it since it was last returned.
type mailboxTexture struct {
	resource    quad.TransferableResource
	importCount int
	fetched     bool

	// tex is nil when the mailbox could not be resolved.
	tex gpucontext.Texture
}

// valid reports whether the texture can be sampled.
func (m *mailboxTexture) valid() bool {
	return m != nil && m.tex != nil
}

// fetchBarrier lets the goroutine building a frame wait until every
// posted fetch signalled completion.
type fetchBarrier struct {
	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int
}

func newFetchBarrier(n int) *fetchBarrier {
	b := &fetchBarrier{outstanding: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *fetchBarrier) done() {
	b.mu.Lock()
	b.outstanding--
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *fetchBarrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.outstanding > 0 {
		b.cond.Wait()
	}
}

// fetchTextures resolves pending mailboxes on the GPU runner and waits for
// all of them. Without a runner, or when already on it, the fetches run
// inline.
func (n *FrameNode) fetchTextures(pending []*mailboxTexture) {
	if len(pending) == 0 {
		return
	}
	if n.gpu == nil || n.gpu.BelongsToCurrentThread() {
		for _, mb := range pending {
			n.fetch(mb)
		}
		return
	}
	b := newFetchBarrier(len(pending))
	for _, mb := range pending {
		err := n.gpu.PostTask(func() {
			n.fetch(mb)
			b.done()
		})
		if err != nil {
			cc.Logger().Warn("delegated: texture fetch not posted", "id", mb.resource.ID, "err", err)
			mb.fetched = true
			b.done()
		}
	}
	b.wait()
}

func (n *FrameNode) fetch(mb *mailboxTexture) {
	mb.fetched = true
	if n.fetcher == nil {
		return
	}
	tex, err := n.fetcher.FetchTexture(mb.resource)
	if err != nil {
		// The producer may have deleted the texture, e.g. on navigation.
		cc.Logger().Debug("delegated: mailbox not resolved", "id", mb.resource.ID, "mailbox", mb.resource.Mailbox.Name, "err", err)
		return
	}
	mb.tex = tex
}
