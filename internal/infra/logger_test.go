package infra

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Dir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger := NewLogger(cfg)
	if !logger.Enabled(nil, slog.LevelDebug) {
		t.Error("Expected debug level enabled")
	}
	logger.Info("hello")

	if _, err := os.Stat(filepath.Join(cfg.Logging.Dir, "engine.log")); err != nil {
		t.Errorf("Expected log file, got %v", err)
	}
}
