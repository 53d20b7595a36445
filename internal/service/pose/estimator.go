// Package pose turns a detected strip pair into a camera-relative pose.
package pose

import (
	"fmt"
	"math"

	"targetvision/internal/geometry"
	"targetvision/internal/model"
	"targetvision/internal/service/pnp"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Solver is the perspective-n-point capability the estimator needs.
type Solver interface {
	Solve(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics) (pnp.Solution, error)
}

// Estimator maps pairs to poses. It owns its scratch buffers and is not
// safe for concurrent use; the pose task holds the only one.
type Estimator struct {
	solver Solver
	world  []r3.Vec
	image  []r2.Vec
}

// NewEstimator creates an estimator for the fixed target model.
func NewEstimator(solver Solver) *Estimator {
	world := geometry.TargetWorldModel()
	return &Estimator{
		solver: solver,
		world:  world[:],
		image:  make([]r2.Vec, geometry.PointCount),
	}
}

// Estimate returns the pose of pair seen through k. A nil pair yields a nil
// pose and no error. Any solve failure also yields a nil pose, with the
// error describing why.
func (e *Estimator) Estimate(pair *model.TargetPair, k model.CameraIntrinsics) (*model.RelativePose, error) {
	p, _, err := e.EstimateSolution(pair, k)
	return p, err
}

// EstimateSolution is Estimate that also returns the solver's raw solution.
// The solution is nil whenever the pose is.
func (e *Estimator) EstimateSolution(pair *model.TargetPair, k model.CameraIntrinsics) (*model.RelativePose, *pnp.Solution, error) {
	if pair == nil {
		return nil, nil, nil
	}

	pts := geometry.ImagePoints(pair)
	copy(e.image, pts[:])

	sol, err := e.solver.Solve(e.world, e.image, k)
	if err != nil {
		return nil, nil, fmt.Errorf("solve pose: %w", err)
	}

	p, err := Decompose(sol)
	if err != nil {
		return nil, nil, err
	}
	return &p, &sol, nil
}

// Decompose reads heading and distance in the camera's horizontal plane
// (x right, z forward) from the translation and the target's yaw from the
// y angle of the [R|t] decomposition.
func Decompose(sol pnp.Solution) (model.RelativePose, error) {
	x, z := sol.Translation.X, sol.Translation.Z

	angles, err := pnp.DecomposeProjection(pnp.ProjectionMatrix(pnp.Rodrigues(sol.Rotation), sol.Translation))
	if err != nil {
		return model.RelativePose{}, fmt.Errorf("decompose pose: %w", err)
	}

	p := model.RelativePose{
		Heading:   math.Atan2(x, z) * 180 / math.Pi,
		Distance:  math.Hypot(x, z),
		ObjectYaw: angles.Y,
	}
	if math.IsNaN(p.Heading) || math.IsNaN(p.Distance) || math.IsInf(p.Distance, 0) {
		return model.RelativePose{}, fmt.Errorf("decompose pose: %w", pnp.ErrDegenerate)
	}
	return p, nil
}
