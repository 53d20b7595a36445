// Package pnp solves the perspective-n-point problem for a planar target:
// rotation and translation of the target relative to the camera from
// matched world and image points.
//
// Solver is the pure-Go backend, used where OpenCV is unavailable (see
// package cvpnp for the default). Its solve is a normalized DLT homography,
// decomposed into [R|t] and refined by minimizing reprojection error. Lens
// distortion is zero.
package pnp

import (
	"errors"
	"fmt"
	"math"

	"targetvision/internal/model"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrDegenerate means the correspondences do not determine a pose.
	ErrDegenerate = errors.New("pnp: degenerate correspondence")
	// ErrNotConverged means the best pose still reprojects too far off.
	ErrNotConverged = errors.New("pnp: solution did not converge")
	// ErrBadShape is returned for mismatched or too few points.
	ErrBadShape = errors.New("pnp: bad input shape")
	// ErrNonPlanar is returned when world points are not on z = 0.
	ErrNonPlanar = errors.New("pnp: world points are not planar")
)

const (
	// DefaultMaxError is the accepted reprojection RMS, pixels.
	DefaultMaxError = 4.0
	// DefaultMaxIterations bounds the refinement.
	DefaultMaxIterations = 400

	behindCameraCost = 1e12
)

// Solution is a camera-from-target pose.
type Solution struct {
	Rotation    r3.Vec // axis-angle vector
	Translation r3.Vec // same units as the world points
	RMSError    float64
}

// Solver estimates poses from planar correspondences.
type Solver struct {
	MaxError      float64
	MaxIterations int
}

// NewSolver creates a solver with the given reprojection tolerance in
// pixels; zero or negative selects DefaultMaxError.
func NewSolver(maxError float64) *Solver {
	if maxError <= 0 {
		maxError = DefaultMaxError
	}
	return &Solver{MaxError: maxError, MaxIterations: DefaultMaxIterations}
}

// Solve returns the pose minimizing reprojection error of world onto image.
func (s *Solver) Solve(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics) (Solution, error) {
	for _, p := range world {
		if math.Abs(p.Z) > 1e-9 {
			return Solution{}, ErrNonPlanar
		}
	}
	if err := ValidateInput(world, image, k); err != nil {
		return Solution{}, err
	}

	rot, t, err := homographyPose(world, image, k)
	if err != nil {
		return Solution{}, err
	}

	rot, t = s.refine(world, image, k, rot, t)

	rms := math.Sqrt(reprojectionCost(world, image, k, rot, t) / float64(len(world)))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return Solution{}, ErrDegenerate
	}
	if rms > s.MaxError {
		return Solution{}, fmt.Errorf("%w: rms %.2f px", ErrNotConverged, rms)
	}

	return Solution{
		Rotation:    RotationVector(rot),
		Translation: t,
		RMSError:    rms,
	}, nil
}

// ValidateInput rejects correspondences no solver can use: mismatched or
// fewer than four points, a non-positive focal length, or image points that
// all coincide.
func ValidateInput(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics) error {
	if len(world) != len(image) || len(world) < 4 {
		return ErrBadShape
	}
	if k.Fx <= 0 || k.Fy <= 0 {
		return fmt.Errorf("%w: focal length %.3f x %.3f", ErrDegenerate, k.Fx, k.Fy)
	}
	var spread float64
	for _, p := range image[1:] {
		spread = math.Max(spread, r2.Norm(r2.Sub(p, image[0])))
	}
	if spread < 1e-9 {
		return fmt.Errorf("%w: image points coincide", ErrDegenerate)
	}
	return nil
}

// ReprojectionError is the RMS pixel distance between image and the world
// points projected through sol. ok is false when a point falls behind the
// camera or the result is not finite.
func ReprojectionError(world []r3.Vec, image []r2.Vec, sol Solution, k model.CameraIntrinsics) (rms float64, ok bool) {
	rot := Rodrigues(sol.Rotation)
	var sum float64
	for i, p := range world {
		q, front := project(p, rot, sol.Translation, k)
		if !front {
			return 0, false
		}
		d := r2.Sub(q, image[i])
		sum += d.X*d.X + d.Y*d.Y
	}
	rms = math.Sqrt(sum / float64(len(world)))
	return rms, !math.IsNaN(rms) && !math.IsInf(rms, 0)
}

// homographyPose estimates [R|t] from the plane-to-image homography of the
// normalized image coordinates.
func homographyPose(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics) (*mat.Dense, r3.Vec, error) {
	n := len(world)

	// Condition the world points: centroid at origin, mean distance sqrt(2).
	var mx, my float64
	for _, p := range world {
		mx += p.X
		my += p.Y
	}
	mx /= float64(n)
	my /= float64(n)
	var spread float64
	for _, p := range world {
		spread += math.Hypot(p.X-mx, p.Y-my)
	}
	spread /= float64(n)
	if spread < 1e-12 {
		return nil, r3.Vec{}, ErrDegenerate
	}
	scale := math.Sqrt2 / spread

	a := mat.NewDense(2*n, 9, nil)
	for i := range world {
		X := (world[i].X - mx) * scale
		Y := (world[i].Y - my) * scale
		x := (image[i].X - k.Cx) / k.Fx
		y := (image[i].Y - k.Cy) / k.Fy
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -x * X, -x * Y, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -y * X, -y * Y, -y})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil, r3.Vec{}, fmt.Errorf("%w: homography factorization failed", ErrDegenerate)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < 1e-10 {
		return nil, r3.Vec{}, fmt.Errorf("%w: homography is rank deficient", ErrDegenerate)
	}
	var v mat.Dense
	svd.VTo(&v)

	// Hn maps conditioned world points; H = Hn * T maps raw ones.
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}
	cond := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mx,
		0, scale, -scale * my,
		0, 0, 1,
	})
	var h mat.Dense
	h.Mul(hn, cond)

	h1 := r3.Vec{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vec{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vec{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	norm := (r3.Norm(h1) + r3.Norm(h2)) / 2
	if norm < 1e-12 {
		return nil, r3.Vec{}, fmt.Errorf("%w: homography has no rotation part", ErrDegenerate)
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := r3.Scale(lambda, h1)
	r2v := r3.Scale(lambda, h2)
	t := r3.Scale(lambda, h3)
	r3v := r3.Cross(r1, r2v)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, err := nearestRotation(approx)
	if err != nil {
		return nil, r3.Vec{}, err
	}
	return rot, t, nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: rotation factorization failed", ErrDegenerate)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}
	return &rot, nil
}

// refine runs Nelder-Mead over a small rotation about the initial estimate
// plus the translation. The initial estimate is kept unless the search
// improves on it.
func (s *Solver) refine(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics, rot0 *mat.Dense, t0 r3.Vec) (*mat.Dense, r3.Vec) {
	pose := func(x []float64) (*mat.Dense, r3.Vec) {
		var rot mat.Dense
		rot.Mul(Rodrigues(r3.Vec{X: x[0], Y: x[1], Z: x[2]}), rot0)
		return &rot, r3.Vec{X: x[3], Y: x[4], Z: x[5]}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			rot, t := pose(x)
			return reprojectionCost(world, image, k, rot, t)
		},
	}
	x0 := []float64{0, 0, 0, t0.X, t0.Y, t0.Z}
	f0 := problem.Func(x0)

	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	// Iteration limits surface as an error but still carry the best point,
	// so only the result is inspected.
	result, _ := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil || math.IsNaN(result.F) || result.F >= f0 {
		return rot0, t0
	}
	return pose(result.X)
}

func reprojectionCost(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics, rot mat.Matrix, t r3.Vec) float64 {
	var cost float64
	for i, p := range world {
		q, ok := project(p, rot, t, k)
		if !ok {
			return behindCameraCost
		}
		dx := q.X - image[i].X
		dy := q.Y - image[i].Y
		cost += dx*dx + dy*dy
	}
	return cost
}

func project(p r3.Vec, rot mat.Matrix, t r3.Vec, k model.CameraIntrinsics) (r2.Vec, bool) {
	x := rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z + t.X
	y := rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z + t.Y
	z := rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z + t.Z
	if z <= 1e-9 {
		return r2.Vec{}, false
	}
	return r2.Vec{X: k.Fx*x/z + k.Cx, Y: k.Fy*y/z + k.Cy}, true
}

// Project maps world points into the image for a rotation vector and
// translation. Points behind the camera are reported by ok = false.
func Project(world []r3.Vec, rvec, t r3.Vec, k model.CameraIntrinsics) (pts []r2.Vec, ok bool) {
	rot := Rodrigues(rvec)
	pts = make([]r2.Vec, len(world))
	ok = true
	for i, p := range world {
		q, front := project(p, rot, t, k)
		if !front {
			ok = false
		}
		pts[i] = q
	}
	return pts, ok
}
