package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"dev", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"nonsense", slog.LevelError},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, slog.LevelInfo), "relay")
	logger.Info("started")
	if !strings.Contains(buf.String(), "component=relay") {
		t.Fatalf("log line %q missing component attribute", buf.String())
	}
}
