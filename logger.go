package hashgrid

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
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

// attached holds the devices of open grids that accept a logger.
var (
	attachedMu sync.Mutex
	attached   = make(map[loggerSetter]int)
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for hashgrid and the devices of all open
// grids. By default, hashgrid produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by hashgrid:
//   - [slog.LevelDebug]: per-frame dispatch sizes, buffer allocation details
//   - [slog.LevelInfo]: lifecycle events (grid created, buffers reallocated)
//   - [slog.LevelWarn]: degraded behaviour (statistics program unavailable)
//   - [slog.LevelError]: fatal setup problems (required program missing)
//
// Example:
//
//	hashgrid.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	attachedMu.Lock()
	defer attachedMu.Unlock()
	for d := range attached {
		d.SetLogger(l)
	}
}

// Logger returns the current logger used by hashgrid.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// attachLogger passes the current logger to a device if it accepts one and
// keeps it updated until detachLogger.
func attachLogger(device any) {
	ls, ok := device.(loggerSetter)
	if !ok {
		return
	}
	attachedMu.Lock()
	defer attachedMu.Unlock()
	ls.SetLogger(Logger())
	attached[ls]++
}

func detachLogger(device any) {
	ls, ok := device.(loggerSetter)
	if !ok {
		return
	}
	attachedMu.Lock()
	defer attachedMu.Unlock()
	if attached[ls]--; attached[ls] <= 0 {
		delete(attached, ls)
	}
}
