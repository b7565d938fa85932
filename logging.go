package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Logger defines the logging interface for the storage node.
// It is designed to be compatible with standard logging libraries
// such as slog, zap, and zerolog.
//
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	// Used for per-peer bookkeeping such as ledger updates.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	// Used for significant events like a peer being reported.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	// Used for recoverable issues like a failed report.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// NopLogger is a no-op logger implementation that discards all log messages.
// It is the default logger when no logger is configured.
type NopLogger struct{}

// Ensure NopLogger implements Logger.
var _ Logger = NopLogger{}

// Debug implements Logger.Debug (no-op).
func (NopLogger) Debug(msg string, keysAndValues ...any) {}

// Info implements Logger.Info (no-op).
func (NopLogger) Info(msg string, keysAndValues ...any) {}

// Warn implements Logger.Warn (no-op).
func (NopLogger) Warn(msg string, keysAndValues ...any) {}

// Error implements Logger.Error (no-op).
func (NopLogger) Error(msg string, keysAndValues ...any) {}

// Extra slog levels for the two ends of the daemon's level range.
const (
	LevelTrace    = slog.LevelDebug - 4
	LevelCritical = slog.LevelError + 4
)

var logLevels = []struct {
	name  string
	level slog.Level
}{
	{"trace", LevelTrace},
	{"debug", slog.LevelDebug},
	{"info", slog.LevelInfo},
	{"warning", slog.LevelWarn},
	{"error", slog.LevelError},
	{"critical", LevelCritical},
}

// ParseLogLevel maps a level name to its slog level. Names are
// case-insensitive; "warn" is accepted as an alias for "warning".
func ParseLogLevel(name string) (slog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warn" {
		name = "warning"
	}
	for _, l := range logLevels {
		if l.name == name {
			return l.level, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, name)
}

// LogLevelNames returns the accepted level names from most to least verbose.
func LogLevelNames() []string {
	names := make([]string, len(logLevels))
	for i, l := range logLevels {
		names[i] = l.name
	}
	return names
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Trace(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), LevelTrace, msg, keysAndValues...)
}

func (s *SlogLogger) Debug(msg string, keysAndValues ...any) {
	s.l.Debug(msg, keysAndValues...)
}

func (s *SlogLogger) Info(msg string, keysAndValues ...any) {
	s.l.Info(msg, keysAndValues...)
}

func (s *SlogLogger) Warn(msg string, keysAndValues ...any) {
	s.l.Warn(msg, keysAndValues...)
}

func (s *SlogLogger) Error(msg string, keysAndValues ...any) {
	s.l.Error(msg, keysAndValues...)
}

func (s *SlogLogger) Critical(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), LevelCritical, msg, keysAndValues...)
}

// With returns a logger that adds keysAndValues to every record.
func (s *SlogLogger) With(keysAndValues ...any) *SlogLogger {
	return &SlogLogger{l: s.l.With(keysAndValues...)}
}

// ReplaceLevelNames is a slog.HandlerOptions.ReplaceAttr func that prints
// the trace and critical levels by name.
func ReplaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case LevelTrace:
		a.Value = slog.StringValue("TRACE")
	case LevelCritical:
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
