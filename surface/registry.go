// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/geom"
	"github.com/gogpu/cc/render"
)

// Options configures a new output surface.
type Options struct {
	// Size is the surface size in device pixels.
	Size geom.Size

	// Scale is the device scale factor. Zero means 1.
	Scale float64

	// Device is the GPU device the host renders with, if any.
	Device render.DeviceHandle

	// Sink receives frames of delegating surfaces.
	Sink FrameSink
}

// Factory creates a new OutputSurface with the given options.
// Implementations should validate options and return descriptive errors.
type Factory func(opts Options) (OutputSurface, error)

// RegistryEntry represents a registered output surface backend.
type RegistryEntry struct {
	// Name is the unique identifier for this backend.
	Name string

	// Priority determines selection order (higher = preferred).
	// Standard priorities:
	//   - 50: delegating to a parent compositor
	//   - 10: software drawing
	Priority int

	// Factory creates surface instances.
	Factory Factory

	// Available reports if the backend is available on this system.
	Available func() bool
}

var globalRegistry = NewRegistry()

// Registry manages registered output surface backends.
//
// Example usage:
//
//	s, err := surface.NewOutputSurfaceByName("software", surface.Options{Size: size})
//	// or auto-select best available:
//	s, err := surface.NewOutputSurface(surface.Options{Size: size, Sink: sink})
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// NewRegistry creates a new empty registry.
// Most code should use the global registry via Register and NewOutputSurface.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*RegistryEntry),
	}
}

// Register adds a backend to the global registry.
// If available is nil, the backend is assumed always available.
// Registering a name that already exists replaces the previous entry.
func Register(name string, priority int, factory Factory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// List returns all registered backend names sorted by priority (highest first).
func List() []string {
	return globalRegistry.List()
}

// Available returns names of all available backends sorted by priority.
func Available() []string {
	return globalRegistry.Available()
}

// NewOutputSurface creates a surface using the best backend that accepts opts.
func NewOutputSurface(opts Options) (OutputSurface, error) {
	return globalRegistry.NewOutputSurface(opts)
}

// NewOutputSurfaceByName creates a surface using a specific named backend.
func NewOutputSurfaceByName(name string, opts Options) (OutputSurface, error) {
	return globalRegistry.NewOutputSurfaceByName(name, opts)
}

// Register adds a backend to this registry.
func (r *Registry) Register(name string, priority int, factory Factory, available func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if available == nil {
		available = func() bool { return true }
	}
	r.entries[name] = &RegistryEntry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// Unregister removes a backend from this registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// List returns all registered backend names sorted by priority.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames(false)
}

// Available returns names of all available backends sorted by priority.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames(true)
}

// NewOutputSurface tries each available backend in priority order.
func (r *Registry) NewOutputSurface(opts Options) (OutputSurface, error) {
	r.mu.RLock()
	available := r.sortedNames(true)
	r.mu.RUnlock()

	if len(available) == 0 {
		return nil, ErrNoBackendAvailable
	}

	var lastErr error
	for _, name := range available {
		s, err := r.NewOutputSurfaceByName(name, opts)
		if err == nil {
			return s, nil
		}
		cc.Logger().Debug("surface: backend declined", "backend", name, "err", err)
		lastErr = err
	}
	return nil, lastErr
}

// NewOutputSurfaceByName creates a surface using a specific backend.
func (r *Registry) NewOutputSurfaceByName(name string, opts Options) (OutputSurface, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &BackendNotFoundError{Name: name}
	}
	if !entry.Available() {
		return nil, &BackendUnavailableError{Name: name}
	}
	s, err := entry.Factory(opts)
	if err != nil {
		return nil, err
	}
	if opts.Scale > 0 {
		s.Reshape(opts.Size, opts.Scale)
	}
	return s, nil
}

// sortedNames returns backend names sorted by priority (highest first),
// ties broken by name. Must be called with lock held.
func (r *Registry) sortedNames(onlyAvailable bool) []string {
	entries := make([]*RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if onlyAvailable && !e.Available() {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// ErrNoBackendAvailable is returned when no backends are registered
// or available on the current system.
var ErrNoBackendAvailable = errors.New("surface: no backend available")

// BackendNotFoundError indicates a named backend is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "surface: backend not found: " + e.Name
}

// BackendUnavailableError indicates a backend exists but is not available.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "surface: backend unavailable: " + e.Name
}

func init() {
	Register("delegating", 50, func(opts Options) (OutputSurface, error) {
		if opts.Sink == nil {
			return nil, ErrNoSink
		}
		return NewDelegatingOutputSurface(opts.Sink), nil
	}, nil)
	Register("software", 10, func(opts Options) (OutputSurface, error) {
		if opts.Size.IsEmpty() {
			return nil, errors.New("surface: empty size")
		}
		if render.HasDevice(opts.Device) {
			cc.Logger().Debug("surface: device present, drawing in software anyway")
		}
		return NewSoftwareOutputSurface(opts.Size), nil
	}, nil)
}
