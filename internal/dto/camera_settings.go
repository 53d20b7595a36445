package dto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CameraProperty is one named camera control.
type CameraProperty struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CameraSettings is the camera configuration blob. Only present fields are
// applied.
type CameraSettings struct {
	Width      *int             `json:"width,omitempty"`
	Height     *int             `json:"height,omitempty"`
	FPS        *float64         `json:"fps,omitempty"`
	Brightness *float64         `json:"brightness,omitempty"`
	Exposure   *float64         `json:"exposure,omitempty"`
	Properties []CameraProperty `json:"properties,omitempty"`
}

// ParseCameraSettings decodes and checks a camera configuration blob.
// Property names are lower-cased.
func ParseCameraSettings(blob []byte) (*CameraSettings, error) {
	var s CameraSettings
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode camera config: %w", err)
	}
	if s.Width != nil && *s.Width <= 0 {
		return nil, fmt.Errorf("camera config: width %d", *s.Width)
	}
	if s.Height != nil && *s.Height <= 0 {
		return nil, fmt.Errorf("camera config: height %d", *s.Height)
	}
	if s.FPS != nil && *s.FPS <= 0 {
		return nil, fmt.Errorf("camera config: fps %.1f", *s.FPS)
	}
	for i := range s.Properties {
		s.Properties[i].Name = strings.ToLower(strings.TrimSpace(s.Properties[i].Name))
		if s.Properties[i].Name == "" {
			return nil, fmt.Errorf("camera config: property %d has no name", i)
		}
	}
	return &s, nil
}
