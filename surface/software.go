// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"
	"sync"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
	"github.com/gogpu/cc/render"
)

// SoftwareOutputSurface draws frames on the CPU into a pixmap.
//
// Every resource referenced by a frame is returned right after the frame
// is drawn. Swaps are acknowledged immediately unless manual
// acknowledgement is enabled.
type SoftwareOutputSurface struct {
	mu        sync.Mutex
	client    Client
	renderer  *render.SoftwareRenderer
	target    *render.PixmapTarget
	scale     float64
	closed    bool
	lost      bool
	manualAck bool
	unacked   int
	frames    int
	last      *quad.CompositorFrame
}

// NewSoftwareOutputSurface returns a surface of the given size.
func NewSoftwareOutputSurface(size geom.Size) *SoftwareOutputSurface {
	return &SoftwareOutputSurface{
		target: render.NewPixmapTarget(size.Width, size.Height),
		scale:  1,
	}
}

// BindToClient implements OutputSurface.
func (s *SoftwareOutputSurface) BindToClient(client Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.client != nil:
		return ErrAlreadyBound
	}
	s.client = client
	s.renderer = render.NewSoftwareRenderer(client)
	cc.Logger().Info("surface: software output surface bound", "size", geom.Size{Width: s.target.Width(), Height: s.target.Height()})
	return nil
}

// Capabilities implements OutputSurface.
func (s *SoftwareOutputSurface) Capabilities() Capabilities {
	return Capabilities{}
}

// Reshape implements OutputSurface.
func (s *SoftwareOutputSurface) Reshape(size geom.Size, scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.Resize(size.Width, size.Height)
	s.scale = scale
}

// SwapBuffers implements OutputSurface.
func (s *SoftwareOutputSurface) SwapBuffers(frame *quad.CompositorFrame) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.lost:
		s.mu.Unlock()
		return ErrContextLost
	case s.client == nil:
		s.mu.Unlock()
		return ErrNotBound
	}
	client := s.client
	err := s.renderer.DrawFrame(frame, s.target)
	s.frames++
	s.last = frame
	ack := !s.manualAck
	if !ack {
		s.unacked++
	}
	s.mu.Unlock()

	if err != nil {
		cc.Logger().Warn("surface: draw frame failed", "err", err)
	}
	if returns := frameResources(frame); len(returns) > 0 {
		client.ReclaimResources(returns)
	}
	if ack {
		client.DidSwapBuffersComplete()
	}
	return err
}

// SetManualAck makes swaps wait for AckSwap instead of being acknowledged
// immediately.
func (s *SoftwareOutputSurface) SetManualAck(manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualAck = manual
}

// AckSwap acknowledges the oldest unacknowledged swap and reports whether
// there was one.
func (s *SoftwareOutputSurface) AckSwap() bool {
	s.mu.Lock()
	if s.unacked == 0 || s.client == nil {
		s.mu.Unlock()
		return false
	}
	s.unacked--
	client := s.client
	s.mu.Unlock()
	client.DidSwapBuffersComplete()
	return true
}

// LoseContext simulates a lost device. Later swaps fail with
// ErrContextLost.
func (s *SoftwareOutputSurface) LoseContext() {
	s.mu.Lock()
	if s.lost || s.client == nil {
		s.lost = true
		s.mu.Unlock()
		return
	}
	s.lost = true
	client := s.client
	s.mu.Unlock()
	cc.Logger().Warn("surface: software output surface lost")
	client.DidLoseOutputSurface()
}

// Image returns a copy of the presented pixels.
func (s *SoftwareOutputSurface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Snapshot(s.target.Image().Bounds())
}

// FrameCount returns the number of swapped frames.
func (s *SoftwareOutputSurface) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// LastFrame returns the most recently swapped frame.
func (s *SoftwareOutputSurface) LastFrame() *quad.CompositorFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close implements OutputSurface. Close is idempotent.
func (s *SoftwareOutputSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client = nil
	return nil
}

var _ OutputSurface = (*SoftwareOutputSurface)(nil)
