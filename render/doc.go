// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render draws compositor frames.
//
// # Key Principle
//
// The compositor RECEIVES a GPU device from the host application, it does
// NOT create its own. Hosts that render through the GPU hand a
// DeviceHandle to the output surface; without one, frames are drawn on the
// CPU by SoftwareRenderer into a PixmapTarget.
//
// # Frames
//
// A frame is a list of render passes, root last. SoftwareRenderer draws
// each non-root pass into an offscreen target that it keeps per
// RenderPassID across frames, then draws the root pass into the output
// target limited to the root damage rect. Quads of a pass are stored
// front to back and drawn in reverse.
//
//	renderer := render.NewSoftwareRenderer(provider)
//	target := render.NewPixmapTarget(800, 600)
//	err := renderer.DrawFrame(frame, target)
package render
