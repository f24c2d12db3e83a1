package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FACECAM_BACKEND_URL", "FACECAM_REQUEST_TIMEOUT", "FACECAM_CAMERA_FORMAT",
		"FACECAM_CAMERA_DEVICE", "FACECAM_CAMERA_SIZE", "FACECAM_CAMERA_FPS",
		"FACECAM_TICK_INTERVAL", "FACECAM_REGISTER_TARGET", "FACECAM_JPEG_QUALITY",
		"FACECAM_MAX_FRAME_WIDTH", "FACECAM_STALE_AFTER", "FACECAM_CAPTURE_ERROR_THRESHOLD",
		"DATABASE_URL", "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD",
		"POSTGRES_DB", "POSTGRES_PORT", "WEB_HOST", "WEB_PORT", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Backend.URL != "http://localhost:5000" {
		t.Errorf("expected default backend URL, got '%s'", cfg.Backend.URL)
	}
	if cfg.Pipeline.TickInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms tick, got %s", cfg.Pipeline.TickInterval)
	}
	if cfg.Pipeline.RegisterTarget != 25 {
		t.Errorf("expected register target 25, got %d", cfg.Pipeline.RegisterTarget)
	}
	if cfg.Pipeline.JPEGQuality != 70 {
		t.Errorf("expected jpeg quality 70, got %d", cfg.Pipeline.JPEGQuality)
	}
	if cfg.Camera.Size != "1280x720" {
		t.Errorf("expected 1280x720 capture size, got '%s'", cfg.Camera.Size)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected journal to be disabled by default, got '%s'", cfg.Database.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACECAM_BACKEND_URL", "http://recognizer:9000")
	t.Setenv("FACECAM_TICK_INTERVAL", "250ms")
	t.Setenv("FACECAM_REGISTER_TARGET", "10")
	t.Setenv("FACECAM_MAX_FRAME_WIDTH", "640")
	t.Setenv("WEB_PORT", "9090")

	cfg := Load()

	if cfg.Backend.URL != "http://recognizer:9000" {
		t.Errorf("expected overridden backend URL, got '%s'", cfg.Backend.URL)
	}
	if cfg.Pipeline.TickInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms tick, got %s", cfg.Pipeline.TickInterval)
	}
	if cfg.Pipeline.RegisterTarget != 10 {
		t.Errorf("expected register target 10, got %d", cfg.Pipeline.RegisterTarget)
	}
	if cfg.Pipeline.MaxFrameWidth != 640 {
		t.Errorf("expected max width 640, got %d", cfg.Pipeline.MaxFrameWidth)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACECAM_TICK_INTERVAL", "soon")
	t.Setenv("FACECAM_REGISTER_TARGET", "-3")

	cfg := Load()

	if cfg.Pipeline.TickInterval != 500*time.Millisecond {
		t.Errorf("expected fallback to 500ms, got %s", cfg.Pipeline.TickInterval)
	}
	if cfg.Pipeline.RegisterTarget != 25 {
		t.Errorf("expected fallback to 25, got %d", cfg.Pipeline.RegisterTarget)
	}
}

func TestLoad_PostgresVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "cam")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "facecam")

	cfg := Load()

	want := "postgres://cam:secret@db:5432/facecam"
	if cfg.Database.URL != want {
		t.Errorf("expected '%s', got '%s'", want, cfg.Database.URL)
	}

	t.Setenv("DATABASE_URL", "postgres://explicit/db")
	if got := Load().Database.URL; got != "postgres://explicit/db" {
		t.Errorf("expected DATABASE_URL to win, got '%s'", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty backend", func(c *Config) { c.Backend.URL = "" }, "backend URL"},
		{"tick too fast", func(c *Config) { c.Pipeline.TickInterval = 10 * time.Millisecond }, "tick interval"},
		{"zero target", func(c *Config) { c.Pipeline.RegisterTarget = 0 }, "register target"},
		{"quality too high", func(c *Config) { c.Pipeline.JPEGQuality = 101 }, "jpeg quality"},
		{"negative width", func(c *Config) { c.Pipeline.MaxFrameWidth = -1 }, "max frame width"},
		{"unknown format", func(c *Config) { c.Camera.Format = "gstreamer" }, "unsupported camera format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing '%s', got %v", tt.wantErr, err)
			}
		})
	}
}
