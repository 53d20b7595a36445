package pnp

import (
	"errors"
	"math"
	"testing"

	"targetvision/internal/geometry"
	"targetvision/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var testIntrinsics = model.CameraIntrinsics{Fx: 300, Fy: 300, Cx: 160, Cy: 120}

func rotY(deg float64) *mat.Dense {
	c, s := math.Cos(deg*math.Pi/180), math.Sin(deg*math.Pi/180)
	return mat.NewDense(3, 3, []float64{c, 0, s, 0, 1, 0, -s, 0, c})
}

func rotX(deg float64) *mat.Dense {
	c, s := math.Cos(deg*math.Pi/180), math.Sin(deg*math.Pi/180)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, -s, 0, s, c})
}

// facingCamera is the target seen from the front, turned by yaw degrees.
// The world model has y up while the camera has y down, hence the half turn
// about x.
func facingCamera(yaw float64) *mat.Dense {
	var r mat.Dense
	r.Mul(rotY(yaw), rotX(180))
	return &r
}

func worldSlice() []r3.Vec {
	w := geometry.TargetWorldModel()
	return w[:]
}

func projectAll(t *testing.T, world []r3.Vec, rot mat.Matrix, tr r3.Vec) []r2.Vec {
	t.Helper()
	pts := make([]r2.Vec, len(world))
	for i, p := range world {
		q, ok := project(p, rot, tr, testIntrinsics)
		require.True(t, ok, "point %d behind camera", i)
		pts[i] = q
	}
	return pts
}

func assertMatrixNear(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	assert.True(t, mat.EqualApprox(want, got, tol), "matrices differ:\nwant %v\ngot  %v",
		mat.Formatted(want), mat.Formatted(got))
}

func TestRodrigues_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rvec r3.Vec
	}{
		{"identity", r3.Vec{}},
		{"small", r3.Vec{X: 1e-4, Y: -2e-4, Z: 5e-5}},
		{"quarter turn about y", r3.Vec{Y: math.Pi / 2}},
		{"oblique", r3.Vec{X: 0.3, Y: -0.7, Z: 0.2}},
		{"near half turn", r3.Vec{X: math.Pi - 1e-3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := Rodrigues(tt.rvec)
			assert.InDelta(t, 1, mat.Det(rot), 1e-9, "determinant")

			back := RotationVector(rot)
			assertMatrixNear(t, rot, Rodrigues(back), 1e-9)
		})
	}
}

func TestRodrigues_KnownMatrix(t *testing.T) {
	assertMatrixNear(t, rotY(30), Rodrigues(r3.Vec{Y: 30 * math.Pi / 180}), 1e-12)
	assertMatrixNear(t, rotX(180), Rodrigues(r3.Vec{X: math.Pi}), 1e-12)
}

func TestDecomposeProjection_Yaw(t *testing.T) {
	for _, yaw := range []float64{-35, -10, 0, 12.5, 40} {
		p := ProjectionMatrix(facingCamera(yaw), r3.Vec{X: 3, Y: -1, Z: 60})

		e, err := DecomposeProjection(p)
		require.NoError(t, err)
		assert.InDelta(t, yaw, e.Y, 1e-9, "yaw %.1f", yaw)
		assert.InDelta(t, 180, math.Abs(e.X), 1e-9, "x half turn for yaw %.1f", yaw)
		assert.InDelta(t, 0, e.Z, 1e-9, "roll for yaw %.1f", yaw)
	}
}

func TestDecomposeProjection_PureRotations(t *testing.T) {
	e, err := DecomposeProjection(rotX(25))
	require.NoError(t, err)
	assert.InDelta(t, 25, e.X, 1e-9)
	assert.InDelta(t, 0, e.Y, 1e-9)

	e, err = DecomposeProjection(rotY(-15))
	require.NoError(t, err)
	assert.InDelta(t, -15, e.Y, 1e-9)
}

func TestDecomposeProjection_BadShape(t *testing.T) {
	_, err := DecomposeProjection(mat.NewDense(2, 4, nil))
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestSolve_RecoversSyntheticPose(t *testing.T) {
	tests := []struct {
		name string
		yaw  float64
		t    r3.Vec
	}{
		{"straight ahead", 0, r3.Vec{X: 0, Y: 0, Z: 48}},
		{"right and turned", 20, r3.Vec{X: 6, Y: 2, Z: 72}},
		{"left and turned back", -25, r3.Vec{X: -10, Y: -3, Z: 90}},
	}

	solver := NewSolver(0)
	world := worldSlice()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := facingCamera(tt.yaw)
			image := projectAll(t, world, rot, tt.t)

			sol, err := solver.Solve(world, image, testIntrinsics)
			require.NoError(t, err)

			assert.InDelta(t, tt.t.X, sol.Translation.X, 1e-3)
			assert.InDelta(t, tt.t.Y, sol.Translation.Y, 1e-3)
			assert.InDelta(t, tt.t.Z, sol.Translation.Z, 1e-3)
			assertMatrixNear(t, rot, Rodrigues(sol.Rotation), 1e-5)
			assert.Less(t, sol.RMSError, 1e-3)
		})
	}
}

func TestSolve_NoisyPointsStillConverge(t *testing.T) {
	world := worldSlice()
	rot := facingCamera(10)
	tr := r3.Vec{X: 4, Y: 0, Z: 60}
	image := projectAll(t, world, rot, tr)

	// Half-pixel jitter, as integer corner coordinates would give.
	jitter := []float64{0.5, -0.4, 0.3, -0.5, 0.2, 0.4, -0.3, 0.1}
	for i := range image {
		image[i].X += jitter[i]
		image[i].Y -= jitter[len(jitter)-1-i]
	}

	sol, err := NewSolver(0).Solve(world, image, testIntrinsics)
	require.NoError(t, err)
	assert.InDelta(t, tr.Z, sol.Translation.Z, 3)
	assert.Less(t, sol.RMSError, 1.0)
}

func TestSolve_Errors(t *testing.T) {
	solver := NewSolver(0)
	world := worldSlice()

	t.Run("too few points", func(t *testing.T) {
		_, err := solver.Solve(world[:3], make([]r2.Vec, 3), testIntrinsics)
		assert.ErrorIs(t, err, ErrBadShape)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := solver.Solve(world, make([]r2.Vec, 7), testIntrinsics)
		assert.ErrorIs(t, err, ErrBadShape)
	})

	t.Run("non planar", func(t *testing.T) {
		bent := append([]r3.Vec(nil), world...)
		bent[0].Z = 1
		_, err := solver.Solve(bent, make([]r2.Vec, len(bent)), testIntrinsics)
		assert.ErrorIs(t, err, ErrNonPlanar)
	})

	t.Run("all image points coincide", func(t *testing.T) {
		image := make([]r2.Vec, len(world))
		for i := range image {
			image[i] = r2.Vec{X: 100, Y: 100}
		}
		_, err := solver.Solve(world, image, testIntrinsics)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDegenerate) || errors.Is(err, ErrNotConverged), "got %v", err)
	})

	t.Run("zero focal length", func(t *testing.T) {
		_, err := solver.Solve(world, make([]r2.Vec, len(world)), model.CameraIntrinsics{})
		assert.ErrorIs(t, err, ErrDegenerate)
	})
}

func TestProject_MatchesInternalProjection(t *testing.T) {
	world := worldSlice()
	rvec := RotationVector(facingCamera(15))
	tr := r3.Vec{X: 2, Y: 1, Z: 50}

	pts, ok := Project(world, rvec, tr, testIntrinsics)
	require.True(t, ok)

	want := projectAll(t, world, Rodrigues(rvec), tr)
	for i := range pts {
		assert.InDelta(t, want[i].X, pts[i].X, 1e-9)
		assert.InDelta(t, want[i].Y, pts[i].Y, 1e-9)
	}
}

func TestValidateInput(t *testing.T) {
	world := worldSlice()
	image := projectAll(t, world, facingCamera(0), r3.Vec{Z: 60})

	require.NoError(t, ValidateInput(world, image, testIntrinsics))
	assert.ErrorIs(t, ValidateInput(world[:3], image[:3], testIntrinsics), ErrBadShape)
	assert.ErrorIs(t, ValidateInput(world, image[:7], testIntrinsics), ErrBadShape)
	assert.ErrorIs(t, ValidateInput(world, image, model.CameraIntrinsics{Fx: 300}), ErrDegenerate)
	assert.ErrorIs(t, ValidateInput(world, make([]r2.Vec, len(world)), testIntrinsics), ErrDegenerate)
}

func TestReprojectionError(t *testing.T) {
	world := worldSlice()
	rot := facingCamera(15)
	tr := r3.Vec{X: 2, Y: -1, Z: 70}
	image := projectAll(t, world, rot, tr)
	sol := Solution{Rotation: RotationVector(rot), Translation: tr}

	rms, ok := ReprojectionError(world, image, sol, testIntrinsics)
	require.True(t, ok)
	assert.InDelta(t, 0, rms, 1e-9)

	// Every point off by (3, 4) gives an RMS of exactly 5.
	shifted := make([]r2.Vec, len(image))
	for i, p := range image {
		shifted[i] = r2.Vec{X: p.X + 3, Y: p.Y + 4}
	}
	rms, ok = ReprojectionError(world, shifted, sol, testIntrinsics)
	require.True(t, ok)
	assert.InDelta(t, 5, rms, 1e-9)

	sol.Translation.Z = -70
	_, ok = ReprojectionError(world, image, sol, testIntrinsics)
	assert.False(t, ok, "target behind the camera")
}
