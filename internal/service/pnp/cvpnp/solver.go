// Package cvpnp solves the planar target pose with OpenCV's iterative
// solvePnP. It shares input checks, error values and the Solution type with
// package pnp, whose pure-Go solver serves builds without cgo.
package cvpnp

import (
	"fmt"

	"targetvision/internal/model"
	"targetvision/internal/service/pnp"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// solvePnPIterative is cv::SOLVEPNP_ITERATIVE.
const solvePnPIterative = 0

// Solver estimates poses with gocv.SolvePnP.
type Solver struct {
	MaxError float64
}

// NewSolver creates a solver with the given reprojection tolerance in
// pixels; zero or negative selects pnp.DefaultMaxError.
func NewSolver(maxError float64) *Solver {
	if maxError <= 0 {
		maxError = pnp.DefaultMaxError
	}
	return &Solver{MaxError: maxError}
}

// Solve returns the camera-from-target pose for the correspondences.
func (s *Solver) Solve(world []r3.Vec, image []r2.Vec, k model.CameraIntrinsics) (pnp.Solution, error) {
	if err := pnp.ValidateInput(world, image, k); err != nil {
		return pnp.Solution{}, err
	}

	objectPts := make([]gocv.Point3f, len(world))
	for i, p := range world {
		objectPts[i] = gocv.NewPoint3f(float32(p.X), float32(p.Y), float32(p.Z))
	}
	imagePts := make([]gocv.Point2f, len(image))
	for i, p := range image {
		imagePts[i] = gocv.NewPoint2f(float32(p.X), float32(p.Y))
	}
	objectVec := gocv.NewPoint3fVectorFromPoints(objectPts)
	defer objectVec.Close()
	imageVec := gocv.NewPoint2fVectorFromPoints(imagePts)
	defer imageVec.Close()

	cameraMatrix := CameraMatrix(k)
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	if ok := gocv.SolvePnP(objectVec, imageVec, cameraMatrix, distCoeffs, &rvec, &tvec, false, solvePnPIterative); !ok {
		return pnp.Solution{}, fmt.Errorf("%w: solvePnP found no pose", pnp.ErrDegenerate)
	}
	if rvec.Total() != 3 || tvec.Total() != 3 {
		return pnp.Solution{}, fmt.Errorf("%w: solvePnP returned %d/%d values", pnp.ErrDegenerate, rvec.Total(), tvec.Total())
	}

	rotation, err := rotationVector(rvec)
	if err != nil {
		return pnp.Solution{}, err
	}
	sol := pnp.Solution{
		Rotation:    rotation,
		Translation: r3.Vec{X: tvec.GetDoubleAt(0, 0), Y: tvec.GetDoubleAt(1, 0), Z: tvec.GetDoubleAt(2, 0)},
	}

	rms, ok := pnp.ReprojectionError(world, image, sol, k)
	if !ok {
		return pnp.Solution{}, fmt.Errorf("%w: target behind the camera", pnp.ErrDegenerate)
	}
	if rms > s.MaxError {
		return pnp.Solution{}, fmt.Errorf("%w: rms %.2f px", pnp.ErrNotConverged, rms)
	}
	sol.RMSError = rms
	return sol, nil
}

// CameraMatrix builds the 3x3 CV_64F intrinsic matrix. The caller closes it.
func CameraMatrix(k model.CameraIntrinsics) gocv.Mat {
	m := gocv.Eye(3, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, k.Fx)
	m.SetDoubleAt(1, 1, k.Fy)
	m.SetDoubleAt(0, 2, k.Cx)
	m.SetDoubleAt(1, 2, k.Cy)
	return m
}

// rotationVector converts OpenCV's rotation vector to the canonical
// axis-angle form, angle in [0, pi], by way of its rotation matrix.
func rotationVector(rvec gocv.Mat) (r3.Vec, error) {
	rmat := gocv.NewMat()
	defer rmat.Close()
	if err := gocv.Rodrigues(rvec, &rmat); err != nil {
		return r3.Vec{}, fmt.Errorf("failed to convert rotation vector: %w", err)
	}
	if rmat.Rows() != 3 || rmat.Cols() != 3 {
		return r3.Vec{}, fmt.Errorf("%w: rotation matrix is %dx%d", pnp.ErrDegenerate, rmat.Rows(), rmat.Cols())
	}
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, rmat.GetDoubleAt(i, j))
		}
	}
	return pnp.RotationVector(rot), nil
}
