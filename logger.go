package colibri

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with colibri-specific context.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTablet adds a tablet id field to the logger.
func (l *Logger) WithTablet(tabletID int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tablet", tabletID),
	}
}

// LogIndexLoad logs a primary index load.
func (l *Logger) LogIndexLoad(ctx context.Context, tabletID int64, keys int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "primary index load failed",
			"tablet", tabletID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "primary index loaded",
			"tablet", tabletID,
			"keys", keys,
			"elapsed", elapsed,
		)
	}
}

// LogReplace logs the outcome of a compaction replace pass.
func (l *Logger) LogReplace(ctx context.Context, tabletID int64, rows, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "compaction replace completed with conflicts",
			"tablet", tabletID,
			"rows", rows,
			"failed", failed,
		)
	} else {
		l.DebugContext(ctx, "compaction replace completed",
			"tablet", tabletID,
			"rows", rows,
		)
	}
}

// LogSnapshot logs a snapshot serialize/parse operation.
func (l *Logger) LogSnapshot(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot written",
			"path", path,
		)
	}
}
