package pose

import (
	"math"
	"sync/atomic"

	"targetvision/internal/model"
)

// NewIntrinsics derives a pinhole model from the resolution and the lens
// field of view in degrees. The principal point is the image centre.
func NewIntrinsics(width, height int, fovX, fovY float64) model.CameraIntrinsics {
	w, h := float64(width), float64(height)
	return model.CameraIntrinsics{
		Fx: (w / 2) / math.Tan(fovX*math.Pi/360),
		Fy: (h / 2) / math.Tan(fovY*math.Pi/360),
		Cx: w / 2,
		Cy: h / 2,
	}
}

type intrinsicsEntry struct {
	res model.Resolution
	k   model.CameraIntrinsics
}

// IntrinsicsCache recomputes intrinsics only when the resolution changes.
// Update has a single writer (the detection task); Current may be called
// from anywhere.
type IntrinsicsCache struct {
	fovX, fovY float64
	current    atomic.Pointer[intrinsicsEntry]
	recomputes atomic.Uint64
}

// NewIntrinsicsCache creates an empty cache for a lens.
func NewIntrinsicsCache(fovX, fovY float64) *IntrinsicsCache {
	return &IntrinsicsCache{fovX: fovX, fovY: fovY}
}

// Update returns the intrinsics for a frame size, and whether the size
// differs from the previous call.
func (c *IntrinsicsCache) Update(width, height int) (model.CameraIntrinsics, bool) {
	res := model.Resolution{Width: width, Height: height}
	if cur := c.current.Load(); cur != nil && cur.res == res {
		return cur.k, false
	}

	entry := &intrinsicsEntry{res: res, k: NewIntrinsics(width, height, c.fovX, c.fovY)}
	c.current.Store(entry)
	c.recomputes.Add(1)
	return entry.k, true
}

// Current returns the last computed intrinsics and their resolution; ok is
// false before the first Update.
func (c *IntrinsicsCache) Current() (k model.CameraIntrinsics, res model.Resolution, ok bool) {
	cur := c.current.Load()
	if cur == nil {
		return model.CameraIntrinsics{}, model.Resolution{}, false
	}
	return cur.k, cur.res, true
}

// Recomputes counts resolution changes seen so far.
func (c *IntrinsicsCache) Recomputes() uint64 {
	return c.recomputes.Load()
}
