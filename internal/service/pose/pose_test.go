package pose

import (
	"errors"
	"math"
	"testing"

	"targetvision/internal/geometry"
	"targetvision/internal/model"
	"targetvision/internal/service/pnp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var fixtureIntrinsics = model.CameraIntrinsics{Fx: 300, Fy: 300, Cx: 160, Cy: 120}

// facing is the rotation of a target turned by yaw degrees about the
// vertical axis, its y axis flipped to the image's downward y.
func facing(yaw float64) *mat.Dense {
	c, s := math.Cos(yaw*math.Pi/180), math.Sin(yaw*math.Pi/180)
	ry := mat.NewDense(3, 3, []float64{c, 0, s, 0, 1, 0, -s, 0, c})
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, -1, 0, 0, 0, -1})
	var r mat.Dense
	r.Mul(ry, rx)
	return &r
}

// fixturePair projects the world model and hands each strip its corners in
// an order unrelated to the model's, as a rectangle fitter would.
func fixturePair(t *testing.T, yaw float64, tr r3.Vec) *model.TargetPair {
	t.Helper()
	return projectPair(t, yaw, tr, fixtureIntrinsics)
}

func projectPair(t *testing.T, yaw float64, tr r3.Vec, k model.CameraIntrinsics) *model.TargetPair {
	t.Helper()
	world := geometry.TargetWorldModel()
	pts, ok := pnp.Project(world[:], pnp.RotationVector(facing(yaw)), tr, k)
	require.True(t, ok)

	return &model.TargetPair{
		Left:  model.TargetShape{Corners: [4]r2.Vec{pts[3], pts[0], pts[2], pts[1]}},
		Right: model.TargetShape{Corners: [4]r2.Vec{pts[6], pts[7], pts[4], pts[5]}},
	}
}

func TestNewIntrinsics(t *testing.T) {
	k := NewIntrinsics(320, 240, 62.2, 48.8)

	assert.InDelta(t, 160/math.Tan(31.1*math.Pi/180), k.Fx, 1e-9)
	assert.InDelta(t, 120/math.Tan(24.4*math.Pi/180), k.Fy, 1e-9)
	assert.Equal(t, 160.0, k.Cx)
	assert.Equal(t, 120.0, k.Cy)
}

func TestIntrinsicsCache_RecomputesOncePerResolution(t *testing.T) {
	c := NewIntrinsicsCache(62.2, 48.8)

	_, _, ok := c.Current()
	assert.False(t, ok)

	k1, changed := c.Update(320, 240)
	assert.True(t, changed)
	for i := 0; i < 10; i++ {
		k, changed := c.Update(320, 240)
		assert.False(t, changed)
		assert.Equal(t, k1, k)
	}
	assert.Equal(t, uint64(1), c.Recomputes())

	k2, changed := c.Update(640, 480)
	assert.True(t, changed)
	assert.InDelta(t, 2*k1.Fx, k2.Fx, 1e-9)
	assert.Equal(t, uint64(2), c.Recomputes())

	k, res, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, k2, k)
	assert.Equal(t, model.Resolution{Width: 640, Height: 480}, res)
}

func TestEstimate_ReferenceFixture(t *testing.T) {
	tests := []struct {
		name string
		yaw  float64
		t    r3.Vec
	}{
		{"ahead and turned right", 20, r3.Vec{X: 6, Y: 0, Z: 72}},
		{"left and turned left", -15, r3.Vec{X: -9, Y: 4, Z: 96}},
		{"square on", 0, r3.Vec{X: 0, Y: -2, Z: 40}},
	}

	e := NewEstimator(pnp.NewSolver(0))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Estimate(fixturePair(t, tt.yaw, tt.t), fixtureIntrinsics)
			require.NoError(t, err)
			require.NotNil(t, p)

			assert.InDelta(t, math.Atan2(tt.t.X, tt.t.Z)*180/math.Pi, p.Heading, 0.5)
			assert.InDelta(t, math.Hypot(tt.t.X, tt.t.Z), p.Distance, 0.1)
			assert.InDelta(t, tt.yaw, p.ObjectYaw, 0.5)
		})
	}
}

func TestEstimate_HeadingSign(t *testing.T) {
	e := NewEstimator(pnp.NewSolver(0))

	right, err := e.Estimate(fixturePair(t, 0, r3.Vec{X: 10, Z: 60}), fixtureIntrinsics)
	require.NoError(t, err)
	left, err := e.Estimate(fixturePair(t, 0, r3.Vec{X: -10, Z: 60}), fixtureIntrinsics)
	require.NoError(t, err)

	assert.Greater(t, right.Heading, 0.0)
	assert.Less(t, left.Heading, 0.0)
}

func TestEstimate_NilPairIsAbsence(t *testing.T) {
	e := NewEstimator(failingSolver{})

	p, err := e.Estimate(nil, fixtureIntrinsics)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

type failingSolver struct{}

func (failingSolver) Solve([]r3.Vec, []r2.Vec, model.CameraIntrinsics) (pnp.Solution, error) {
	return pnp.Solution{}, pnp.ErrNotConverged
}

func TestEstimate_SolveFailureIsAbsence(t *testing.T) {
	e := NewEstimator(failingSolver{})

	p, err := e.Estimate(fixturePair(t, 10, r3.Vec{Z: 60}), fixtureIntrinsics)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, pnp.ErrNotConverged))
}

type recordingSolver struct {
	world []r3.Vec
	image []r2.Vec
}

func (s *recordingSolver) Solve(world []r3.Vec, image []r2.Vec, _ model.CameraIntrinsics) (pnp.Solution, error) {
	s.world = append([]r3.Vec(nil), world...)
	s.image = append([]r2.Vec(nil), image...)
	return pnp.Solution{Translation: r3.Vec{Z: 10}}, nil
}

func TestEstimate_PassesOrderedCorrespondence(t *testing.T) {
	rec := &recordingSolver{}
	e := NewEstimator(rec)
	pair := fixturePair(t, 5, r3.Vec{X: 1, Z: 50})

	_, err := e.Estimate(pair, fixtureIntrinsics)
	require.NoError(t, err)

	world := geometry.TargetWorldModel()
	want := geometry.ImagePoints(pair)
	assert.Equal(t, world[:], rec.world)
	assert.Equal(t, want[:], rec.image)
}

func TestDecompose_Degenerate(t *testing.T) {
	_, err := Decompose(pnp.Solution{Translation: r3.Vec{X: math.NaN(), Z: 1}})
	assert.ErrorIs(t, err, pnp.ErrDegenerate)
}

// At 320x240 the strips span few pixels, so the yaw depends on keeping the
// fitted corners at sub-pixel precision.
func TestEstimate_SubPixelCornersKeepYaw(t *testing.T) {
	k := NewIntrinsics(320, 240, 62.2, 48.8)
	tests := []struct {
		name string
		yaw  float64
		t    r3.Vec
	}{
		{"far and turned", 35, r3.Vec{X: -20, Y: 10, Z: 140}},
		{"mid range", 20, r3.Vec{Z: 100}},
	}

	e := NewEstimator(pnp.NewSolver(0))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Estimate(projectPair(t, tt.yaw, tt.t, k), k)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.InDelta(t, tt.yaw, p.ObjectYaw, 0.5)
			assert.InDelta(t, math.Hypot(tt.t.X, tt.t.Z), p.Distance, 0.5)
		})
	}

	t.Run("tenth of a pixel jitter", func(t *testing.T) {
		pair := projectPair(t, 35, r3.Vec{X: -20, Y: 10, Z: 140}, k)
		jitter := []float64{0.1, -0.1, 0.05, -0.08, 0.1, -0.05, 0.08, -0.1}
		for i := range pair.Left.Corners {
			pair.Left.Corners[i].X += jitter[i]
			pair.Left.Corners[i].Y -= jitter[7-i]
			pair.Right.Corners[i].X += jitter[4+i]
			pair.Right.Corners[i].Y -= jitter[3-i]
		}

		p, err := e.Estimate(pair, k)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Positive(t, p.ObjectYaw)
		assert.InDelta(t, 35, p.ObjectYaw, 2)
	})
}

func TestEstimateSolution(t *testing.T) {
	e := NewEstimator(pnp.NewSolver(0))
	tr := r3.Vec{X: 4, Z: 60}

	p, sol, err := e.EstimateSolution(fixturePair(t, 10, tr), fixtureIntrinsics)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, sol)
	assert.InDelta(t, tr.Z, sol.Translation.Z, 1e-3)

	want, err := Decompose(*sol)
	require.NoError(t, err)
	assert.Equal(t, want, *p)

	p, sol, err = e.EstimateSolution(nil, fixtureIntrinsics)
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, sol)
}
