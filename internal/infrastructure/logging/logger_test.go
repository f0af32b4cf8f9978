package logging

import (
	"log/slog"
	"testing"

	"github.com/gatewise/gatewise-core/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	cfg := config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}
	log := New(cfg, "test")
	if log == nil || log.Logger == nil {
		t.Fatal("New() returned nil logger")
	}
	// Must not panic.
	log.Debug("debug message", "key", "value")
	log.Info("info message")
}

func TestWithAddsAttributes(t *testing.T) {
	log := Default()
	child := log.With("component", "barrier")
	if child == nil || child.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	if child == log {
		t.Error("With() should return a new logger")
	}
}
