package model

import (
	"image"

	"gonum.org/v1/gonum/spatial/r2"
)

// TargetShape is one detected candidate strip: an oriented rectangle, the
// contour it was fitted to and its centroid and size in pixels.
type TargetShape struct {
	Corners [4]r2.Vec     // rotated rectangle corners, in fitting order
	Contour []image.Point // source contour, only used for debug rendering
	X       int           // centroid x
	Y       int           // centroid y
	W       int
	H       int
	Angle   float64 // rectangle angle as reported by the fitter, degrees
	Area    float64 // contour area, pixels
}

// TargetPair is the left/right strip combination chosen for a frame.
// A nil *TargetPair means no target was found.
type TargetPair struct {
	Left  TargetShape
	Right TargetShape
	X     int // centre of the union bounding box
	Y     int
	W     int
	H     int
}

// DetectionResult is what the detector returns for a single frame.
type DetectionResult struct {
	Shapes []TargetShape
	Pair   *TargetPair
}
