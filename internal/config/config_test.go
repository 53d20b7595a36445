package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"CAMERA_WIDTH", "CAMERA_HEIGHT", "CAMERA_FOV_X", "DEBUG_DISPLAY", "FPS_WINDOW", "POSE_SOLVER"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.DefaultWidth != 320 || cfg.DefaultHeight != 240 {
		t.Errorf("Expected 320x240, got %dx%d", cfg.DefaultWidth, cfg.DefaultHeight)
	}
	if cfg.CameraFOVX != 62.2 || cfg.CameraFOVY != 48.8 {
		t.Errorf("Unexpected field of view %.1fx%.1f", cfg.CameraFOVX, cfg.CameraFOVY)
	}
	if cfg.DebugDisplay != DebugNone {
		t.Errorf("Expected debug display %q, got %q", DebugNone, cfg.DebugDisplay)
	}
	if cfg.FPSWindow != 5*time.Second {
		t.Errorf("Expected 5s fps window, got %s", cfg.FPSWindow)
	}
	if cfg.PoseSolver != SolverOpenCV {
		t.Errorf("Expected solver %q, got %q", SolverOpenCV, cfg.PoseSolver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CAMERA_WIDTH", "640")
	t.Setenv("CAMERA_FOV_X", "70.5")
	t.Setenv("MEASURE_FPS", "false")
	t.Setenv("CAPTURE_RETRY_DELAY", "200ms")
	t.Setenv("POSE_FLUSH_INTERVAL", "3")
	t.Setenv("POSE_SOLVER", "Gonum")
	t.Setenv("DEBUG_DISPLAY", "FULL_PNP")

	cfg := Load()

	if cfg.DefaultWidth != 640 {
		t.Errorf("Expected width 640, got %d", cfg.DefaultWidth)
	}
	if cfg.CameraFOVX != 70.5 {
		t.Errorf("Expected fov 70.5, got %f", cfg.CameraFOVX)
	}
	if cfg.MeasureFPS {
		t.Error("Expected MeasureFPS false")
	}
	if cfg.DebugDisplay != DebugFullPnP {
		t.Errorf("Expected %q, got %q", DebugFullPnP, cfg.DebugDisplay)
	}
	if cfg.PoseSolver != SolverGonum {
		t.Errorf("Expected %q, got %q", SolverGonum, cfg.PoseSolver)
	}
	if cfg.CaptureRetryDelay != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %s", cfg.CaptureRetryDelay)
	}
	if cfg.PoseFlushInterval != 3*time.Second {
		t.Errorf("Expected 3s, got %s", cfg.PoseFlushInterval)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CAMERA_WIDTH", "wide")
	t.Setenv("MEASURE_FPS", "maybe")
	t.Setenv("FPS_WINDOW", "soon")

	cfg := Load()

	if cfg.DefaultWidth != 320 {
		t.Errorf("Expected fallback width 320, got %d", cfg.DefaultWidth)
	}
	if !cfg.MeasureFPS {
		t.Error("Expected fallback MeasureFPS true")
	}
	if cfg.FPSWindow != 5*time.Second {
		t.Errorf("Expected fallback 5s, got %s", cfg.FPSWindow)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DefaultWidth:      320,
			DefaultHeight:     240,
			CameraFOVX:        62.2,
			CameraFOVY:        48.8,
			DebugDisplay:      DebugNone,
			PoseSolver:        SolverOpenCV,
			MeasureFPS:        true,
			FPSWindow:         time.Second,
			PoseBufferLimit:   10,
			PoseFlushInterval: time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero width", func(c *Config) { c.DefaultWidth = 0 }},
		{"negative height", func(c *Config) { c.DefaultHeight = -1 }},
		{"zero fov", func(c *Config) { c.CameraFOVY = 0 }},
		{"straight angle fov", func(c *Config) { c.CameraFOVX = 180 }},
		{"unknown debug mode", func(c *Config) { c.DebugDisplay = "pnp" }},
		{"unknown solver", func(c *Config) { c.PoseSolver = "ransac" }},
		{"fps window", func(c *Config) { c.FPSWindow = 0 }},
		{"buffer limit", func(c *Config) { c.PoseBufferLimit = 0 }},
		{"flush interval", func(c *Config) { c.PoseFlushInterval = 0 }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Base config should validate, got %v", err)
	}
	for _, mode := range debugModes {
		cfg := base()
		cfg.DebugDisplay = mode
		if err := cfg.Validate(); err != nil {
			t.Errorf("Debug mode %q should validate, got %v", mode, err)
		}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}
