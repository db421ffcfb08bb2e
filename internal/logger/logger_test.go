package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hexaflow/taskpilot/internal/config"
)

func TestNew(t *testing.T) {
	log := New(config.Logging{Level: "debug", Service: "taskpilot"})
	if log == nil {
		t.Fatal("New returned nil")
	}
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
