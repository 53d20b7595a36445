// Package geometry holds the image/world correspondence for the two-strip
// vision target: corner classification, the world model and the ordering
// contract between them.
package geometry

import (
	"targetvision/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// PointCount is the number of model/image correspondences per target.
const PointCount = 8

// Corners are a strip's rectangle corners classified by extremum per axis.
// Image y grows downwards, so Top has the smallest y.
type Corners struct {
	Left   r2.Vec
	Right  r2.Vec
	Bottom r2.Vec
	Top    r2.Vec
}

// ClassifyCorners picks argmin x, argmax x, argmax y and argmin y of the four
// rectangle points, each axis independently. On ties the point that comes
// first in pts wins.
func ClassifyCorners(pts [4]r2.Vec) Corners {
	left, right, bottom, top := 0, 0, 0, 0
	for i := 1; i < len(pts); i++ {
		if pts[i].X < pts[left].X {
			left = i
		}
		if pts[i].X > pts[right].X {
			right = i
		}
		if pts[i].Y > pts[bottom].Y {
			bottom = i
		}
		if pts[i].Y < pts[top].Y {
			top = i
		}
	}
	return Corners{
		Left:   pts[left],
		Right:  pts[right],
		Bottom: pts[bottom],
		Top:    pts[top],
	}
}

// ImagePoints assembles the eight image points of a pair in the order
// [L.left, L.right, L.bottom, L.top, R.left, R.right, R.bottom, R.top].
// The order matches TargetWorldModel index for index.
func ImagePoints(pair *model.TargetPair) [PointCount]r2.Vec {
	l := ClassifyCorners(pair.Left.Corners)
	r := ClassifyCorners(pair.Right.Corners)
	return [PointCount]r2.Vec{
		l.Left, l.Right, l.Bottom, l.Top,
		r.Left, r.Right, r.Bottom, r.Top,
	}
}

// targetWorldCoords are the strip corners in inches, derived from the game
// manual drawing. Origin is the centre of the pair's bounding box, y up.
var targetWorldCoords = [PointCount]r3.Vec{
	{X: -7.3125, Y: -2.4375, Z: 0}, // left strip, left corner
	{X: -4.0, Y: 2.4375, Z: 0},     // left strip, right corner
	{X: -5.375, Y: -2.9375, Z: 0},  // left strip, bottom corner
	{X: -5.9375, Y: 2.9375, Z: 0},  // left strip, top corner
	{X: 4.0, Y: 2.4375, Z: 0},      // right strip, left corner
	{X: 7.3125, Y: -2.4375, Z: 0},  // right strip, right corner
	{X: 5.375, Y: -2.9375, Z: 0},   // right strip, bottom corner
	{X: 5.9375, Y: 2.9375, Z: 0},   // right strip, top corner
}

// TargetWorldModel returns a copy of the fixed world model.
func TargetWorldModel() [PointCount]r3.Vec {
	return targetWorldCoords
}

// Tilt is the lean of a single strip as seen in the image.
type Tilt int

const (
	// TiltLeft is a left strip, leaning like "/".
	TiltLeft Tilt = iota
	// TiltRight is a right strip, leaning like "\".
	TiltRight
)

func (t Tilt) String() string {
	if t == TiltLeft {
		return "left"
	}
	return "right"
}

// StripTilt reports which side of the pair a strip belongs to. A "/" strip
// has its leftmost corner lower in the image than its rightmost corner.
func StripTilt(shape model.TargetShape) Tilt {
	c := ClassifyCorners(shape.Corners)
	if c.Left.Y > c.Right.Y {
		return TiltLeft
	}
	return TiltRight
}
