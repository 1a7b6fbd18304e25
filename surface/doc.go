// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides the output surfaces a compositor swaps frames
// into.
//
// An OutputSurface receives one CompositorFrame per swap, acknowledges it
// and gives exported resources back to its Client. The impl side of the
// compositor is the only client.
//
// # Surface Types
//
//   - SoftwareOutputSurface: draws frames on the CPU into a pixmap
//   - DelegatingOutputSurface: forwards frames to a FrameSink, such as a
//     scene-graph adapter or a RemoteSink
//   - RemoteSink: streams frames over a websocket to a RemoteDisplay
//
// # Registry
//
// Backends register a factory with a priority; NewOutputSurface picks the
// best one whose factory accepts the options:
//
//	s, err := surface.NewOutputSurface(surface.Options{Size: size, Scale: 1})
//
// Client callbacks may run on any goroutine, including inside SwapBuffers.
package surface
