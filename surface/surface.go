// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"

	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/render"
)

// Errors returned by output surfaces.
var (
	ErrNotBound     = errors.New("surface: not bound to a client")
	ErrAlreadyBound = errors.New("surface: already bound to a client")
	ErrClosed       = errors.New("surface: closed")
	ErrContextLost  = errors.New("surface: context lost")
	ErrNoSink       = errors.New("surface: no frame sink")
)

// Client receives notifications from an output surface.
type Client interface {
	render.ResourceLookup

	// DidSwapBuffersComplete acknowledges one swapped frame.
	DidSwapBuffersComplete()

	// ReclaimResources gives exported resources back.
	ReclaimResources(returns []quad.ReturnedResource)

	// DidLoseOutputSurface reports that the surface can no longer present.
	DidLoseOutputSurface()
}

// Capabilities describes an output surface.
type Capabilities struct {
	// MaxFramesPending bounds swaps awaiting acknowledgement; 0 means
	// the compositor setting applies.
	MaxFramesPending int

	// DelegatedRendering is true when frames are drawn by another
	// compositor and exported resources come back asynchronously.
	DelegatedRendering bool
}

// OutputSurface is where the impl side presents frames.
//
// BindToClient is called once before the first SwapBuffers. Methods are
// called from the impl goroutine.
type OutputSurface interface {
	BindToClient(client Client) error
	Capabilities() Capabilities
	Reshape(size geom.Size, scale float64)
	SwapBuffers(frame *quad.CompositorFrame) error
	Close() error
}

// FrameSink consumes frames on behalf of a DelegatingOutputSurface.
type FrameSink interface {
	// SubmitFrame hands a frame over. Resources of the frame stay in
	// use until returned through the handler.
	SubmitFrame(frame *quad.CompositorFrame) error

	// SetReturnedResourcesHandler installs the callback that receives
	// returned resources.
	SetReturnedResourcesHandler(fn func([]quad.ReturnedResource))
}

// frameResources returns the resources referenced by a frame, once each.
func frameResources(frame *quad.CompositorFrame) []quad.ReturnedResource {
	seen := make(map[quad.ResourceID]struct{})
	var out []quad.ReturnedResource
	for _, pass := range frame.RenderPassList {
		for _, id := range pass.Resources() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, quad.ReturnedResource{ID: id, Count: 1})
		}
	}
	return out
}
