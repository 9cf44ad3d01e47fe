package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.Debug("debug suppressed")
	logger.Info("info visible")

	out := buf.String()
	if strings.Contains(out, "debug suppressed") {
		t.Errorf("debug message should be filtered at info level, got %q", out)
	}
	if !strings.Contains(out, "info visible") {
		t.Errorf("expected info message in output, got %q", out)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Format: "json", Level: "debug"})

	logger.Debug("cache miss", "key", "concorsi:list:status:OPEN")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "cache miss" {
		t.Errorf("msg = %v, want cache miss", entry["msg"])
	}
	if entry["key"] != "concorsi:list:status:OPEN" {
		t.Errorf("key = %v", entry["key"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(Options{Writer: &buf}))

	adapter.With("component", "cache").Warn("remote unavailable")

	out := buf.String()
	if !strings.Contains(out, "component=cache") || !strings.Contains(out, "remote unavailable") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(*NopLogger); !ok {
		t.Error("OrNop(nil) should return a NopLogger")
	}
	l := NewSlogAdapter(slog.Default())
	if OrNop(l) != Logger(l) {
		t.Error("OrNop should return the given logger")
	}
}
