// Package tuning holds the detector's color thresholds as a versioned
// snapshot. Writers come from the telemetry channel and the HTTP API; the
// detection task reads one snapshot per frame.
package tuning

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"targetvision/internal/dto"
)

// ErrInvalid is returned for thresholds outside their channel range or with
// low above high.
var ErrInvalid = errors.New("tuning: invalid thresholds")

// Channel ranges of OpenCV's 8-bit HLS image.
const (
	MaxHue        = 180
	MaxSaturation = 255
	MaxLuminance  = 255
)

// Thresholds are inclusive [low, high] bounds per HLS channel plus the
// smallest contour area accepted as a strip.
type Thresholds struct {
	Hue        [2]float64 `json:"hue"`
	Saturation [2]float64 `json:"saturation"`
	Luminance  [2]float64 `json:"luminance"`
	MinArea    float64    `json:"minArea"`
}

// Default returns thresholds for a green LED ring on retro-reflective tape.
func Default() Thresholds {
	return Thresholds{
		Hue:        [2]float64{50, 90},
		Saturation: [2]float64{80, 255},
		Luminance:  [2]float64{40, 255},
		MinArea:    15,
	}
}

// Validate checks ranges and ordering of every channel.
func (t Thresholds) Validate() error {
	if err := checkRange("hue", t.Hue, MaxHue); err != nil {
		return err
	}
	if err := checkRange("saturation", t.Saturation, MaxSaturation); err != nil {
		return err
	}
	if err := checkRange("luminance", t.Luminance, MaxLuminance); err != nil {
		return err
	}
	if t.MinArea < 0 {
		return fmt.Errorf("%w: min area %.1f", ErrInvalid, t.MinArea)
	}
	return nil
}

func checkRange(name string, r [2]float64, max float64) error {
	if r[0] < 0 || r[1] > max || r[0] > r[1] {
		return fmt.Errorf("%w: %s [%.1f, %.1f] not within [0, %.0f]", ErrInvalid, name, r[0], r[1], max)
	}
	return nil
}

// Snapshot is an immutable view of the thresholds. Version increases by one
// on every accepted change.
type Snapshot struct {
	Thresholds
	Version uint64 `json:"version"`
}

// Store publishes threshold snapshots. Reads are lock free.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers
}

// NewStore creates a store at version 1.
func NewStore(initial Thresholds) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(&Snapshot{Thresholds: initial, Version: 1})
	return s, nil
}

// Snapshot returns the current thresholds.
func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// Apply merges a partial update into the current thresholds. The merged
// result must validate as a whole, otherwise nothing changes. An update that
// leaves every value as it was does not bump the version.
func (s *Store) Apply(u dto.TuningUpdate) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.Thresholds
	set(&next.Hue[0], u.HueLow)
	set(&next.Hue[1], u.HueHigh)
	set(&next.Saturation[0], u.SatLow)
	set(&next.Saturation[1], u.SatHigh)
	set(&next.Luminance[0], u.LuminanceLow)
	set(&next.Luminance[1], u.LuminanceHigh)
	set(&next.MinArea, u.MinArea)

	if err := next.Validate(); err != nil {
		return *cur, err
	}
	if next == cur.Thresholds {
		return *cur, nil
	}

	snap := &Snapshot{Thresholds: next, Version: cur.Version + 1}
	s.current.Store(snap)
	return *snap, nil
}

func set(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
