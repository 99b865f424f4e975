// internal/log/logger_test.go
package log

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != "console" {
		t.Errorf("expected mode 'console', got %q", cfg.Mode)
	}
	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Errorf("expected format 'text', got %q", cfg.Format)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("expected MaxBackups 3, got %d", cfg.MaxBackups)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  int // slog.Level value
	}{
		{"debug", -4},
		{"info", 0},
		{"warn", 4},
		{"warning", 4},
		{"error", 8},
		{"invalid", 0}, // defaults to info
	}
	for _, tt := range tests {
		got := ParseLevel(tt.input)
		if int(got) != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestInit_Console(t *testing.T) {
	cfg := &Config{
		Mode:  "console",
		Level: "info",
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if Logger() == nil {
		t.Fatal("expected a logger after Init")
	}
}

func TestInit_FileModeBadPath(t *testing.T) {
	cfg := &Config{
		Mode:     "file",
		Level:    "info",
		FilePath: "/dev/null/not-a-dir/test.log",
	}
	if err := Init(cfg); err == nil {
		t.Error("expected error for unwritable log path")
	}
}
