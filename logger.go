package smallworld

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with smallworld-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogBuild logs a graph build.
func (l *Logger) LogBuild(count int, duration time.Duration, err error) {
	if err != nil {
		l.Error("build failed",
			"items", count,
			"error", err,
		)
	} else {
		l.Info("build completed",
			"items", count,
			"duration", duration,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(k, resultsFound int, err error) {
	if err != nil {
		l.Error("search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.Debug("search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSnapshotSave logs a snapshot write.
func (l *Logger) LogSnapshotSave(name string, err error) {
	if err != nil {
		l.Error("snapshot save failed",
			"name", name,
			"error", err,
		)
	} else {
		l.Info("snapshot saved",
			"name", name,
		)
	}
}

// LogSnapshotLoad logs a snapshot read.
func (l *Logger) LogSnapshotLoad(name string, err error) {
	if err != nil {
		l.Error("snapshot load failed",
			"name", name,
			"error", err,
		)
	} else {
		l.Info("snapshot loaded",
			"name", name,
		)
	}
}
