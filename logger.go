package gpurt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpurt/backend"
	"github.com/gogpu/gpurt/internal/epoch"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for gpurt and its sub-packages.
// By default, gpurt produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpurt:
//   - [slog.LevelDebug]: per-frame diagnostics (barriers, cache misses, culls)
//   - [slog.LevelInfo]: lifecycle events (context initialized, backend selected)
//   - [slog.LevelWarn]: leaks at shutdown and device loss
//
// Example:
//
//	// Enable info-level logging to stderr:
//	gpurt.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	gpurt.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	epoch.SetLogger(l)
	backend.SetLogger(l)

	// Propagate to backends in use that accept a logger.
	attachedMu.Lock()
	for b := range attached {
		propagateLogger(b, l)
	}
	attachedMu.Unlock()
}

// Logger returns the current logger used by gpurt.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// attached holds the backends of initialized contexts.
var (
	attachedMu sync.Mutex
	attached   = make(map[backend.Backend]struct{})
)

func attachBackend(b backend.Backend) {
	attachedMu.Lock()
	attached[b] = struct{}{}
	attachedMu.Unlock()
	propagateLogger(b, Logger())
}

func detachBackend(b backend.Backend) {
	attachedMu.Lock()
	delete(attached, b)
	attachedMu.Unlock()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements the
// loggerSetter interface. Called from SetLogger and Initialize so the
// backend in use always has the current logger.
func propagateLogger(b backend.Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
