package tuning

import (
	"sync"
	"testing"

	"targetvision/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestNewStore_RejectsInvalid(t *testing.T) {
	bad := Default()
	bad.Hue = [2]float64{100, 20}

	_, err := NewStore(bad)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApply_PartialUpdate(t *testing.T) {
	s, err := NewStore(Default())
	require.NoError(t, err)
	before := s.Snapshot()

	snap, err := s.Apply(dto.TuningUpdate{HueLow: ptr(55), LuminanceHigh: ptr(200)})
	require.NoError(t, err)

	assert.Equal(t, before.Version+1, snap.Version)
	assert.Equal(t, [2]float64{55, before.Hue[1]}, snap.Hue)
	assert.Equal(t, before.Saturation, snap.Saturation)
	assert.Equal(t, [2]float64{before.Luminance[0], 200}, snap.Luminance)
	assert.Equal(t, snap, s.Snapshot())
}

func TestApply_InvalidLeavesSnapshot(t *testing.T) {
	s, err := NewStore(Default())
	require.NoError(t, err)
	before := s.Snapshot()

	tests := []struct {
		name string
		u    dto.TuningUpdate
	}{
		{"hue above range", dto.TuningUpdate{HueHigh: ptr(181)}},
		{"low above high", dto.TuningUpdate{SatLow: ptr(250), SatHigh: ptr(10)}},
		{"negative luminance", dto.TuningUpdate{LuminanceLow: ptr(-1)}},
		{"negative area", dto.TuningUpdate{MinArea: ptr(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := s.Apply(tt.u)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Equal(t, before, snap)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestApply_NoChangeKeepsVersion(t *testing.T) {
	s, err := NewStore(Default())
	require.NoError(t, err)
	before := s.Snapshot()

	snap, err := s.Apply(dto.TuningUpdate{HueLow: ptr(before.Hue[0])})
	require.NoError(t, err)
	assert.Equal(t, before.Version, snap.Version)

	snap, err = s.Apply(dto.TuningUpdate{})
	require.NoError(t, err)
	assert.Equal(t, before.Version, snap.Version)
}

func TestApply_ConcurrentWritersAndReaders(t *testing.T) {
	s, err := NewStore(Default())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Apply(dto.TuningUpdate{MinArea: ptr(float64(i*100 + j))})
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Snapshot()
				assert.NoError(t, snap.Validate())
			}
		}()
	}
	wg.Wait()

	assert.Greater(t, s.Snapshot().Version, uint64(1))
}
