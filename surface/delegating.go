// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"
	"sync"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/quad"
)

// DelegatingOutputSurface forwards frames to a FrameSink. Resources come
// back whenever the sink stops using them.
type DelegatingOutputSurface struct {
	mu     sync.Mutex
	sink   FrameSink
	client Client
	size   geom.Size
	scale  float64
	closed bool
	frames int
}

// NewDelegatingOutputSurface returns a surface feeding sink.
func NewDelegatingOutputSurface(sink FrameSink) *DelegatingOutputSurface {
	return &DelegatingOutputSurface{sink: sink, scale: 1}
}

// BindToClient implements OutputSurface.
func (s *DelegatingOutputSurface) BindToClient(client Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.client != nil:
		return ErrAlreadyBound
	case s.sink == nil:
		return ErrNoSink
	}
	s.client = client
	s.sink.SetReturnedResourcesHandler(s.onReturned)
	cc.Logger().Info("surface: delegating output surface bound")
	return nil
}

func (s *DelegatingOutputSurface) onReturned(returns []quad.ReturnedResource) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil && len(returns) > 0 {
		client.ReclaimResources(returns)
	}
}

// Capabilities implements OutputSurface.
func (s *DelegatingOutputSurface) Capabilities() Capabilities {
	return Capabilities{DelegatedRendering: true}
}

// Reshape implements OutputSurface.
func (s *DelegatingOutputSurface) Reshape(size geom.Size, scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size, s.scale = size, scale
}

// SwapBuffers implements OutputSurface. A sink error is reported to the
// client as a lost output surface.
func (s *DelegatingOutputSurface) SwapBuffers(frame *quad.CompositorFrame) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.client == nil:
		s.mu.Unlock()
		return ErrNotBound
	}
	client, sink := s.client, s.sink
	s.frames++
	s.mu.Unlock()

	if err := sink.SubmitFrame(frame); err != nil {
		cc.Logger().Warn("surface: frame sink failed", "err", err)
		client.DidLoseOutputSurface()
		return fmt.Errorf("surface: submit frame: %w", err)
	}
	client.DidSwapBuffersComplete()
	return nil
}

// FrameCount returns the number of frames forwarded.
func (s *DelegatingOutputSurface) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close implements OutputSurface.
func (s *DelegatingOutputSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sink != nil {
		s.sink.SetReturnedResourcesHandler(nil)
	}
	s.client = nil
	return nil
}

var _ OutputSurface = (*DelegatingOutputSurface)(nil)
