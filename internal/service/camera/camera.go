// Package camera captures frames through OpenCV's VideoCapture.
package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"targetvision/internal/config"
	"targetvision/internal/dto"
	"targetvision/internal/logger"
	"targetvision/internal/model"

	"gocv.io/x/gocv"
)

var (
	// ErrCaptureFailed means the device returned no image.
	ErrCaptureFailed = errors.New("camera: capture failed")
	// ErrUnknownProperty is returned for camera config properties without
	// a VideoCapture counterpart.
	ErrUnknownProperty = errors.New("camera: unknown property")
)

var properties = map[string]gocv.VideoCaptureProperties{
	"width":         gocv.VideoCaptureFrameWidth,
	"height":        gocv.VideoCaptureFrameHeight,
	"fps":           gocv.VideoCaptureFPS,
	"brightness":    gocv.VideoCaptureBrightness,
	"contrast":      gocv.VideoCaptureContrast,
	"saturation":    gocv.VideoCaptureSaturation,
	"gain":          gocv.VideoCaptureGain,
	"exposure":      gocv.VideoCaptureExposure,
	"exposure_auto": gocv.VideoCaptureAutoExposure,
	"white_balance": gocv.VideoCaptureWhiteBalanceBlueU,
}

// Frame is an owned OpenCV image.
type Frame struct {
	mat    gocv.Mat
	closed bool
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// LoadImage reads an image file as a frame.
func LoadImage(path string) (*Frame, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to read image %s", path)
	}
	return NewFrame(mat), nil
}

func (f *Frame) Width() int  { return f.mat.Cols() }
func (f *Frame) Height() int { return f.mat.Rows() }

// Mat exposes the pixels. It is only valid until Close.
func (f *Frame) Mat() gocv.Mat { return f.mat }

// Close frees the pixel buffer. Closing twice is a no-op.
func (f *Frame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.mat.Close()
}

// Source is a camera device. Capture is meant for a single goroutine;
// ApplyConfig may run concurrently with it.
type Source struct {
	device  string
	capture *gocv.VideoCapture
	scratch gocv.Mat
	mu      sync.Mutex
	logger  *logger.Logger
}

// Open opens the configured device, sets the default resolution and
// brightness and applies the camera config file if one is configured.
func Open(cfg *config.Config, logger *logger.Logger) (*Source, error) {
	var device interface{} = cfg.CameraDevice
	if id, err := strconv.Atoi(cfg.CameraDevice); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", cfg.CameraDevice, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %s is not available", cfg.CameraDevice)
	}

	s := &Source{
		device:  cfg.CameraDevice,
		capture: capture,
		scratch: gocv.NewMat(),
		logger:  logger,
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.DefaultWidth))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.DefaultHeight))
	capture.Set(gocv.VideoCaptureBrightness, float64(cfg.Brightness))

	if cfg.CameraConfigPath != "" {
		blob, err := os.ReadFile(cfg.CameraConfigPath)
		if err != nil {
			logger.Warning("Could not read camera config %s: %v", cfg.CameraConfigPath, err)
		} else if err := s.ApplyConfig(blob); err != nil {
			logger.Warning("Could not apply camera config %s: %v", cfg.CameraConfigPath, err)
		}
	}

	logger.Info("Camera %s opened at %dx%d", s.device, cfg.DefaultWidth, cfg.DefaultHeight)
	return s, nil
}

// Capture reads one frame and returns an owned copy. The read itself cannot
// be interrupted; ctx is checked before it starts, and a read returns within
// one frame period.
func (s *Source) Capture(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.capture.Read(&s.scratch); !ok || s.scratch.Empty() {
		return nil, fmt.Errorf("%w: device %s", ErrCaptureFailed, s.device)
	}
	return NewFrame(s.scratch.Clone()), nil
}

// ApplyConfig applies a camera configuration blob. Properties that are
// unknown are skipped and reported together.
func (s *Source) ApplyConfig(blob json.RawMessage) error {
	settings, err := dto.ParseCameraSettings(blob)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.Width != nil {
		s.capture.Set(gocv.VideoCaptureFrameWidth, float64(*settings.Width))
	}
	if settings.Height != nil {
		s.capture.Set(gocv.VideoCaptureFrameHeight, float64(*settings.Height))
	}
	if settings.FPS != nil {
		s.capture.Set(gocv.VideoCaptureFPS, *settings.FPS)
	}
	if settings.Brightness != nil {
		s.capture.Set(gocv.VideoCaptureBrightness, *settings.Brightness)
	}
	if settings.Exposure != nil {
		s.capture.Set(gocv.VideoCaptureExposure, *settings.Exposure)
	}

	var unknown []string
	for _, p := range settings.Properties {
		prop, ok := properties[p.Name]
		if !ok {
			unknown = append(unknown, p.Name)
			continue
		}
		s.capture.Set(prop, p.Value)
	}

	s.logger.Info("Applied camera config (%d properties)", len(settings.Properties)-len(unknown))
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownProperty, unknown)
	}
	return nil
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scratch.Close()
	return s.capture.Close()
}
