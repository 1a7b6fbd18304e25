// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"image"

	"github.com/gogpu/cc/quad"
)

// Errors returned by renderers.
var (
	ErrNilTarget    = errors.New("render: nil target")
	ErrNoCPUAccess  = errors.New("render: target has no CPU pixels")
	ErrEmptyFrame   = errors.New("render: frame has no render passes")
	ErrMissingPixel = errors.New("render: resource has no pixels")
)

// ResourceLookup resolves the pixels of a resource id.
type ResourceLookup interface {
	Bitmap(id quad.ResourceID) (*image.RGBA, bool)
}

// Renderer draws compositor frames.
type Renderer interface {
	// DrawFrame draws frame into target.
	DrawFrame(frame *quad.CompositorFrame, target RenderTarget) error

	// Capabilities returns what the renderer supports.
	Capabilities() Capabilities
}

// Capabilities describes a renderer.
type Capabilities struct {
	// IsGPU is true for renderers that draw on the host device.
	IsGPU bool

	// PartialSwap is true when only the root damage rect is redrawn.
	PartialSwap bool

	// MaxTextureSize is the largest offscreen target edge, 0 if unbounded.
	MaxTextureSize int
}
