package cc

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled reports false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called while the main and impl goroutines are logging.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for cc and all its sub-packages.
// By default, cc produces no log output.
//
// Log levels used by cc:
//   - [slog.LevelDebug]: per-frame pipeline events (begin frame, commit, activation, draw)
//   - [slog.LevelInfo]: lifecycle events (proxy started, output surface bound)
//   - [slog.LevelWarn]: degraded behavior (lost output surface, skipped quads, missing mailboxes)
//
// Pass nil to restore the default silent logger.
//
// Example:
//
//	cc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by cc.
// Sub-packages call this so that one SetLogger call configures the whole
// compositor.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
