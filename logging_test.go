package storage

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestNopLogger_Methods_DoNotPanic(t *testing.T) {
	logger := NopLogger{}

	logger.Debug("message")
	logger.Debug("message", "key", "value")
	logger.Info("message", "key", 123)
	logger.Warn("message", "key", struct{}{})
	logger.Error("message", "key", nil)
}

// TestLogger is a test logger that records log calls.
type TestLogger struct {
	mu    sync.Mutex
	Calls []LogCall
}

type LogCall struct {
	Level         string
	Message       string
	KeysAndValues []any
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.record("debug", msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.record("info", msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.record("warn", msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.record("error", msg, keysAndValues)
}

func (l *TestLogger) record(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, LogCall{
		Level:         level,
		Message:       msg,
		KeysAndValues: keysAndValues,
	})
}

// Has reports whether a call with the given level and message was recorded.
func (l *TestLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.Calls {
		if c.Level == level && c.Message == msg {
			return true
		}
	}
	return false
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"critical", LevelCritical},
		{" INFO ", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if err != nil {
				t.Fatalf("ParseLogLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel_Unknown(t *testing.T) {
	_, err := ParseLogLevel("verbose")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLogLevelNames(t *testing.T) {
	names := LogLevelNames()
	want := []string{"trace", "debug", "info", "warning", "error", "critical"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("LogLevelNames() = %v, want %v", names, want)
	}
}

func TestSlogLogger_WritesRecords(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level:       LevelTrace,
		ReplaceAttr: ReplaceLevelNames,
	})
	logger := NewSlogLogger(slog.New(h)).With("component", "test")

	logger.Trace("trace message")
	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Critical("critical message")

	out := buf.String()
	for _, want := range []string{
		"level=TRACE", "level=DEBUG", "level=INFO", "level=WARN",
		"level=ERROR", "level=CRITICAL", "key=value", "component=test",
		"critical message",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := NewSlogLogger(slog.New(h))

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below the level were written:\n%s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing:\n%s", out)
	}
}

func TestNewSlogLogger_NilUsesDefault(t *testing.T) {
	if NewSlogLogger(nil).l == nil {
		t.Error("nil slog logger should fall back to slog.Default()")
	}
}

func TestConfig_DefaultsToNopLogger(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if _, ok := cfg.Logger.(NopLogger); !ok {
		t.Error("default logger should be NopLogger")
	}
}

func TestConfig_WithLogger_OverridesDefault(t *testing.T) {
	testLogger := &TestLogger{}

	cfg := &Config{Logger: testLogger}
	cfg.applyDefaults()

	if cfg.Logger != testLogger {
		t.Error("applyDefaults should not override existing logger")
	}
}
