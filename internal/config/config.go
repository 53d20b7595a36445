package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Debug display modes for the rendered debug stream.
const (
	DebugNone        = "none"
	DebugRegular     = "regular"
	DebugBoundingBox = "bounding_box"
	DebugMask        = "mask"
	DebugCorners     = "corners"
	DebugContours    = "contours"
	DebugFullPnP     = "full_pnp"
)

var debugModes = []string{DebugNone, DebugRegular, DebugBoundingBox, DebugMask, DebugCorners, DebugContours, DebugFullPnP}

// Pose solver backends.
const (
	SolverOpenCV = "opencv"
	SolverGonum  = "gonum" // pure Go, no cgo
)

type Config struct {
	Port              int
	Password          string
	CameraDevice      string
	DefaultWidth      int
	DefaultHeight     int
	CameraFOVX        float64 // degrees
	CameraFOVY        float64 // degrees
	Brightness        int
	CameraConfigPath  string // JSON blob applied once at startup, optional
	DebugDisplay      string
	MeasureFPS        bool
	FPSWindow         time.Duration
	CaptureRetryDelay time.Duration
	DatabasePath      string
	PoseBufferLimit   int
	PoseFlushInterval time.Duration
	LogDirectory      string
	MaxSolveError     float64 // reprojection rms in pixels
	PoseSolver        string
	MinContourArea    float64
}

// Load reads an optional .env file and then the environment. A missing .env
// is fine; values already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		Password:          getEnv("PASSWORD", "vision"),
		CameraDevice:      getEnv("CAMERA_DEVICE", "0"),
		DefaultWidth:      getEnvAsInt("CAMERA_WIDTH", 320),
		DefaultHeight:     getEnvAsInt("CAMERA_HEIGHT", 240),
		CameraFOVX:        getEnvAsFloat("CAMERA_FOV_X", 62.2),
		CameraFOVY:        getEnvAsFloat("CAMERA_FOV_Y", 48.8),
		Brightness:        getEnvAsInt("CAMERA_BRIGHTNESS", 40),
		CameraConfigPath:  getEnv("CAMERA_CONFIG", ""),
		DebugDisplay:      strings.ToLower(getEnv("DEBUG_DISPLAY", DebugNone)),
		MeasureFPS:        getEnvAsBool("MEASURE_FPS", true),
		FPSWindow:         getEnvAsDuration("FPS_WINDOW", 5*time.Second),
		CaptureRetryDelay: getEnvAsDuration("CAPTURE_RETRY_DELAY", 50*time.Millisecond),
		DatabasePath:      getEnv("DB_PATH", filepath.Join(".", "data", "poses.db")),
		PoseBufferLimit:   getEnvAsInt("POSE_BUFFER_LIMIT", 50),
		PoseFlushInterval: getEnvAsDuration("POSE_FLUSH_INTERVAL", 10*time.Second),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		MaxSolveError:     getEnvAsFloat("MAX_SOLVE_ERROR", 4.0),
		PoseSolver:        strings.ToLower(getEnv("POSE_SOLVER", SolverOpenCV)),
		MinContourArea:    getEnvAsFloat("MIN_CONTOUR_AREA", 15),
	}
}

// Validate reports the first setting that would make the pipeline unusable.
func (c *Config) Validate() error {
	switch {
	case c.DefaultWidth <= 0 || c.DefaultHeight <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalid, c.DefaultWidth, c.DefaultHeight)
	case c.CameraFOVX <= 0 || c.CameraFOVX >= 180 || c.CameraFOVY <= 0 || c.CameraFOVY >= 180:
		return fmt.Errorf("%w: field of view %.1fx%.1f", ErrInvalid, c.CameraFOVX, c.CameraFOVY)
	case !validDebugMode(c.DebugDisplay):
		return fmt.Errorf("%w: debug display %q (want one of %s)", ErrInvalid, c.DebugDisplay, strings.Join(debugModes, ", "))
	case c.PoseSolver != SolverOpenCV && c.PoseSolver != SolverGonum:
		return fmt.Errorf("%w: pose solver %q (want %s or %s)", ErrInvalid, c.PoseSolver, SolverOpenCV, SolverGonum)
	case c.MeasureFPS && c.FPSWindow <= 0:
		return fmt.Errorf("%w: fps window %s", ErrInvalid, c.FPSWindow)
	case c.PoseBufferLimit <= 0:
		return fmt.Errorf("%w: pose buffer limit %d", ErrInvalid, c.PoseBufferLimit)
	case c.PoseFlushInterval <= 0:
		return fmt.Errorf("%w: pose flush interval %s", ErrInvalid, c.PoseFlushInterval)
	}
	return nil
}

func validDebugMode(mode string) bool {
	for _, m := range debugModes {
		if m == mode {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("250ms") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
