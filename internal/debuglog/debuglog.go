// Package debuglog is the package-wide logging facility every blocking
// subsystem (invoke, lock, placement, tablestore) logs attempt/grant/deny
// events through. It stays silent unless ACTORCORE_DEBUG=1, mirroring the
// teacher's debug.Logf gate, but writes structured log/slog records to a
// rotating file instead of an unconditional stderr Printf.
package debuglog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const enableEnvVar = "ACTORCORE_DEBUG"
const pathEnvVar = "ACTORCORE_DEBUG_LOG"

const defaultLogPath = ".actorcore/debug.log"

var (
	logger  *slog.Logger
	enabled bool
	once    sync.Once
)

func init() {
	enabled = os.Getenv(enableEnvVar) == "1"
}

// Enabled reports whether ACTORCORE_DEBUG=1 was set at process start.
func Enabled() bool {
	return enabled
}

func shared() *slog.Logger {
	once.Do(func() {
		if !enabled {
			logger = slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
			return
		}
		path := os.Getenv(pathEnvVar)
		if path == "" {
			path = defaultLogPath
		}
		writer := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		logger = slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Logger returns the shared *slog.Logger, initializing it (and, when
// enabled, its rotating file writer) on first use.
func Logger() *slog.Logger {
	return shared()
}

// With returns a child logger carrying the given key/value attributes,
// the way callers tag a subsystem ("component", "invoke") onto every
// record it emits.
func With(args ...any) *slog.Logger {
	return shared().With(args...)
}

// Debugf logs a formatted debug-level message with no structured fields,
// matching the teacher's debug.Logf(format, args...) call sites that this
// package's callers are migrating off of.
func Debugf(format string, args ...any) {
	shared().Debug(fmt.Sprintf(format, args...))
}

// DebugCtx logs at debug level with a context, allowing a future handler
// (e.g. one that extracts a trace id) to enrich records without changing
// every call site.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	shared().DebugContext(ctx, msg, args...)
}
