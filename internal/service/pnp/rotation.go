package pnp

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rodrigues converts an axis-angle rotation vector to a 3x3 rotation matrix.
func Rodrigues(r r3.Vec) *mat.Dense {
	return quatToMatrix(vectorToQuat(r))
}

// RotationVector converts a 3x3 rotation matrix to its axis-angle vector,
// with the angle in [0, pi].
func RotationVector(m mat.Matrix) r3.Vec {
	q := matrixToQuat(m)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := r3.Norm(v)
	if n < 1e-15 {
		return r3.Scale(2, v)
	}
	theta := 2 * math.Atan2(n, q.Real)
	return r3.Scale(theta/n, v)
}

func vectorToQuat(r r3.Vec) quat.Number {
	theta := r3.Norm(r)
	if theta < 1e-15 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{
		Real: math.Cos(theta / 2),
		Imag: r.X * s,
		Jmag: r.Y * s,
		Kmag: r.Z * s,
	}
}

func quatToMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// matrixToQuat uses Shepperd's method, picking the largest diagonal term so
// the conversion stays stable near a half turn.
func matrixToQuat(m mat.Matrix) quat.Number {
	m00, m01, m02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m10, m11, m12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	m20, m21, m22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// ProjectionMatrix concatenates a rotation matrix and a translation into the
// 3x4 matrix [R|t].
func ProjectionMatrix(rot mat.Matrix, t r3.Vec) *mat.Dense {
	p := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.Set(i, j, rot.At(i, j))
		}
	}
	p.Set(0, 3, t.X)
	p.Set(1, 3, t.Y)
	p.Set(2, 3, t.Z)
	return p
}

// EulerAngles are rotations about the x, y and z axes in degrees, as produced
// by an RQ decomposition with Givens rotations.
type EulerAngles struct {
	X float64
	Y float64
	Z float64
}

// DecomposeProjection splits the left 3x3 block of a projection matrix into
// an upper triangular calibration matrix and three Givens rotations and
// returns the rotation angles. Index 1 (Y) is the rotation about the
// vertical axis.
func DecomposeProjection(p mat.Matrix) (EulerAngles, error) {
	rows, cols := p.Dims()
	if rows != 3 || (cols != 3 && cols != 4) {
		return EulerAngles{}, ErrBadShape
	}

	var m [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = p.At(i, j)
		}
	}

	// Qx zeroes m[2][1].
	c, s := givens(m[2][2], m[2][1])
	qx := [3][3]float64{{1, 0, 0}, {0, c, s}, {0, -s, c}}
	r := mul3(m, qx)

	// Qy zeroes r[2][0].
	c, s = givens(r[2][2], -r[2][0])
	qy := [3][3]float64{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
	m = mul3(r, qy)

	// Qz zeroes m[1][0].
	c, s = givens(m[1][1], m[1][0])
	qz := [3][3]float64{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}

	e := EulerAngles{
		X: signedAngle(qx[1][1], qx[1][2]),
		Y: signedAngle(qy[0][0], qy[2][0]),
		Z: signedAngle(qz[0][0], qz[0][1]),
	}
	if math.IsNaN(e.X) || math.IsNaN(e.Y) || math.IsNaN(e.Z) {
		return EulerAngles{}, ErrDegenerate
	}
	return e, nil
}

func givens(c, s float64) (float64, float64) {
	z := 1 / math.Sqrt(c*c+s*s+2.220446049250313e-16)
	return c * z, s * z
}

func signedAngle(cos, sin float64) float64 {
	a := math.Acos(math.Max(-1, math.Min(1, cos))) * 180 / math.Pi
	if sin < 0 {
		return -a
	}
	return a
}

func mul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}
