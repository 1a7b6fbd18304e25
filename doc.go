// Package cc is a layer compositor.
//
// A compositor instance is split across two execution contexts:
//
//   - the producer (main thread) owns a persistent tree of layers
//     (package layer) and commits it once per frame;
//   - the consumer (impl thread) owns up to three copies of that tree
//     (pending, active and recycle, package impl), rasterizes tiles
//     (package tiles), tracks damage and submits compositor frames
//     (package quad) to an output surface (package surface).
//
// The scheduler (package scheduler) orders every frame as
//
//	BeginFrame → BeginMainFrame → Commit → Activate → Draw → Swap
//
// and the proxy (package proxy) carries the calls between the two
// contexts, either on one goroutine or on two. Swap promises (package
// swappromise) report what happened to each commit.
//
// Frames can also leave the process: package delegated turns compositor
// frames into the node tree of an external scene-graph renderer, and
// surface.RemoteSink streams them over a websocket.
//
// # Logging
//
// cc is silent by default. Call SetLogger to route its diagnostics into a
// log/slog logger.
//
// # Settings
//
// LayerTreeSettings are built with functional options or loaded from a
// TOML file:
//
//	settings, err := cc.LoadSettings("compositor.toml")
package cc
