package main

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/delegated"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/internal/taskrunner"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/render"
	"github.com/gogpu/cc/scenegraph"
	"github.com/gogpu/cc/scenegraph/memory"
	"github.com/gogpu/cc/surface"
)

// display is where the compositor presents its frames.
type display interface {
	// OutputSurface returns a new output surface. It is called again
	// after the previous one was lost.
	OutputSurface() (surface.OutputSurface, error)

	// SetResourceLookup gives the display access to software resources
	// of the compositor.
	SetResourceLookup(l render.ResourceLookup)

	// Mailboxes returns the mailbox manager textures are shared through,
	// or nil if the display cannot import mailboxes.
	Mailboxes() *memory.MailboxManager

	// Image returns the last presented frame, or nil.
	Image() *image.RGBA

	Close()
}

func newDisplay(mode, url string, size geom.Size, scale float64) (display, error) {
	switch mode {
	case "software":
		return &softwareDisplay{size: size}, nil
	case "delegated":
		return newDelegatedDisplay(size, scale), nil
	case "remote":
		sink, err := surface.DialRemoteSink(url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return &remoteDisplay{sink: sink}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

type softwareDisplay struct {
	size geom.Size

	mu   sync.Mutex
	last *surface.SoftwareOutputSurface
}

func (d *softwareDisplay) OutputSurface() (surface.OutputSurface, error) {
	s := surface.NewSoftwareOutputSurface(d.size)
	d.mu.Lock()
	d.last = s
	d.mu.Unlock()
	return s, nil
}

func (d *softwareDisplay) SetResourceLookup(render.ResourceLookup) {}
func (d *softwareDisplay) Mailboxes() *memory.MailboxManager       { return nil }

func (d *softwareDisplay) Image() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	return d.last.Image()
}

func (d *softwareDisplay) Close() {}

// delegatedDisplay feeds frames into an in-memory scene graph and draws
// it on request, the way a toolkit hosting the compositor would.
type delegatedDisplay struct {
	size      geom.Size
	scale     float64
	gpu       *taskrunner.Runner
	mailboxes *memory.MailboxManager
	node      *delegated.FrameNode

	mu     sync.Mutex
	lookup render.ResourceLookup
}

func newDelegatedDisplay(size geom.Size, scale float64) *delegatedDisplay {
	d := &delegatedDisplay{
		size:      size,
		scale:     scale,
		gpu:       taskrunner.New("gpu"),
		mailboxes: memory.NewMailboxManager(),
	}
	d.node = delegated.NewFrameNode(memory.NewContext(), delegated.TextureFetcherFunc(d.fetch),
		delegated.WithGPURunner(d.gpu))
	return d
}

// fetch resolves mailboxes through the manager and software resources
// through the compositor's provider.
func (d *delegatedDisplay) fetch(r quad.TransferableResource) (gpucontext.Texture, error) {
	if !r.Mailbox.IsZero() {
		return d.mailboxes.FetchTexture(r)
	}
	d.mu.Lock()
	lookup := d.lookup
	d.mu.Unlock()
	if lookup != nil {
		if img, ok := lookup.Bitmap(r.ID); ok {
			return memory.NewTexture(img), nil
		}
	}
	return nil, fmt.Errorf("resource %d has neither mailbox nor bitmap", r.ID)
}

func (d *delegatedDisplay) OutputSurface() (surface.OutputSurface, error) {
	return surface.NewDelegatingOutputSurface(d.node), nil
}

func (d *delegatedDisplay) SetResourceLookup(l render.ResourceLookup) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookup = l
}

func (d *delegatedDisplay) Mailboxes() *memory.MailboxManager { return d.mailboxes }

// Image draws the scene graph in DIPs: the frame node scales device
// pixels down by the device scale factor.
func (d *delegatedDisplay) Image() *image.RGBA {
	w := int(math.Ceil(float64(d.size.Width) / d.scale))
	h := int(math.Ceil(float64(d.size.Height) / d.scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := memory.NewRenderer()
	d.node.Draw(func(root scenegraph.Node) { r.Draw(root, img) })
	stats := d.node.Stats()
	cc.Logger().Info("ccdemo: scene graph drawn",
		"frames", stats.Frames, "quads", stats.Quads, "fences", r.Stats().Fences, "targets", r.Stats().Targets)
	return img
}

func (d *delegatedDisplay) Close() {
	d.node.Close()
	d.gpu.Stop()
}

type remoteDisplay struct {
	sink *surface.RemoteSink
}

func (d *remoteDisplay) OutputSurface() (surface.OutputSurface, error) {
	return surface.NewDelegatingOutputSurface(d.sink), nil
}

func (d *remoteDisplay) SetResourceLookup(render.ResourceLookup) {}
func (d *remoteDisplay) Mailboxes() *memory.MailboxManager       { return nil }
func (d *remoteDisplay) Image() *image.RGBA                      { return nil }

func (d *remoteDisplay) Close() {
	if err := d.sink.Close(); err != nil {
		cc.Logger().Warn("ccdemo: closing remote sink", "err", err)
	}
}
