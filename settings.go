package cc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidSettings is returned when a settings value is out of range.
var ErrInvalidSettings = errors.New("cc: invalid settings")

// Default settings values.
const (
	DefaultTileSize           = 256
	DefaultBeginFrameInterval = Duration(16667 * time.Microsecond)
	DefaultMaxPendingSwaps    = 1
	DefaultDebugBorderWidth   = 2
)

// Duration is a time.Duration that reads and writes as a Go duration
// string ("16ms") in settings files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// LayerTreeSettings configures a compositor instance. The same settings
// are shared by the producer (LayerTreeHost) and the consumer
// (LayerTreeHostImpl); they are fixed for the lifetime of the host.
type LayerTreeSettings struct {
	// Threaded selects the two-goroutine proxy. When false every commit
	// goes straight to the active tree and no pending tree is created.
	Threaded bool `toml:"threaded"`

	// TileSize is the edge length in pixels of raster tiles.
	TileSize int `toml:"tile_size"`

	// RasterWorkers is the number of raster goroutines; 0 means GOMAXPROCS.
	RasterWorkers int `toml:"raster_workers"`

	// BeginFrameInterval is the period of the synthetic begin frame source.
	BeginFrameInterval Duration `toml:"begin_frame_interval"`

	// MaxPendingSwaps bounds the number of submitted frames that have
	// not yet been acknowledged by the output surface.
	MaxPendingSwaps int `toml:"max_pending_swaps"`

	// WaitForActivation keeps the main goroutine blocked after a threaded
	// commit until the committed tree is activated.
	WaitForActivation bool `toml:"wait_for_activation"`

	// ShowDebugBorders appends a debug border quad for every drawn layer.
	ShowDebugBorders bool `toml:"show_debug_borders"`

	// DebugBorderWidth is the debug border line width in device pixels.
	DebugBorderWidth float32 `toml:"debug_border_width"`

	// ShowFPSCounter enables the heads-up display.
	ShowFPSCounter bool `toml:"show_fps_counter"`
}

// DefaultSettings returns single-threaded settings with sensible defaults.
func DefaultSettings() LayerTreeSettings {
	return LayerTreeSettings{
		TileSize:           DefaultTileSize,
		BeginFrameInterval: DefaultBeginFrameInterval,
		MaxPendingSwaps:    DefaultMaxPendingSwaps,
		DebugBorderWidth:   DefaultDebugBorderWidth,
	}
}

// SettingsOption configures LayerTreeSettings.
//
// Example:
//
//	settings := cc.NewSettings(cc.WithThreaded(true), cc.WithTileSize(128))
type SettingsOption func(*LayerTreeSettings)

// NewSettings returns DefaultSettings with the given options applied.
func NewSettings(opts ...SettingsOption) LayerTreeSettings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithThreaded selects the threaded (main + impl goroutine) proxy.
func WithThreaded(threaded bool) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.Threaded = threaded
	}
}

// WithTileSize sets the raster tile size in pixels.
func WithTileSize(size int) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.TileSize = size
	}
}

// WithRasterWorkers sets the number of raster goroutines.
// If n <= 0, GOMAXPROCS is used.
func WithRasterWorkers(n int) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.RasterWorkers = n
	}
}

// WithBeginFrameInterval sets the synthetic begin frame period.
func WithBeginFrameInterval(d time.Duration) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.BeginFrameInterval = Duration(d)
	}
}

// WithMaxPendingSwaps bounds the number of unacknowledged frames.
func WithMaxPendingSwaps(n int) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.MaxPendingSwaps = n
	}
}

// WithWaitForActivation makes main frames wait for pending tree activation.
func WithWaitForActivation(wait bool) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.WaitForActivation = wait
	}
}

// WithShowDebugBorders enables debug border quads.
func WithShowDebugBorders(show bool) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.ShowDebugBorders = show
	}
}

// WithShowFPSCounter enables the heads-up display.
func WithShowFPSCounter(show bool) SettingsOption {
	return func(s *LayerTreeSettings) {
		s.ShowFPSCounter = show
	}
}

// Validate reports whether the settings can drive a compositor.
func (s LayerTreeSettings) Validate() error {
	if s.TileSize <= 0 {
		return fmt.Errorf("%w: tile_size=%d", ErrInvalidSettings, s.TileSize)
	}
	if s.BeginFrameInterval <= 0 {
		return fmt.Errorf("%w: begin_frame_interval=%s", ErrInvalidSettings, time.Duration(s.BeginFrameInterval))
	}
	if s.MaxPendingSwaps <= 0 {
		return fmt.Errorf("%w: max_pending_swaps=%d", ErrInvalidSettings, s.MaxPendingSwaps)
	}
	if s.DebugBorderWidth < 0 {
		return fmt.Errorf("%w: debug_border_width=%g", ErrInvalidSettings, s.DebugBorderWidth)
	}
	return nil
}

// ParseSettings decodes TOML settings on top of DefaultSettings.
// Unknown keys are rejected.
//
// Example file:
//
//	threaded = true
//	tile_size = 128
//	begin_frame_interval = "8ms"
func ParseSettings(data []byte) (LayerTreeSettings, error) {
	s := DefaultSettings()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return LayerTreeSettings{}, fmt.Errorf("cc: parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return LayerTreeSettings{}, err
	}
	return s, nil
}

// LoadSettings reads and parses a TOML settings file.
func LoadSettings(path string) (LayerTreeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LayerTreeSettings{}, fmt.Errorf("cc: load settings: %w", err)
	}
	return ParseSettings(data)
}

// MarshalSettings encodes settings as TOML.
func MarshalSettings(s LayerTreeSettings) ([]byte, error) {
	return toml.Marshal(s)
}
