// Package target picks the left/right strip pair to track from the
// candidate shapes of one frame.
package target

import (
	"math"
	"sort"

	"targetvision/internal/geometry"
	"targetvision/internal/model"
)

// SelectPair returns the adjacent "/" "\" pair whose centre is closest to
// the horizontal centre of the frame, or nil when no such pair exists.
// Shapes are considered in order of centroid x; the input is not modified.
func SelectPair(shapes []model.TargetShape, frameWidth int) *model.TargetPair {
	if len(shapes) < 2 {
		return nil
	}

	sorted := make([]model.TargetShape, len(shapes))
	copy(sorted, shapes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	centre := float64(frameWidth) / 2
	var best *model.TargetPair
	bestOffset := math.Inf(1)
	for i := 0; i+1 < len(sorted); i++ {
		left, right := sorted[i], sorted[i+1]
		if geometry.StripTilt(left) != geometry.TiltLeft || geometry.StripTilt(right) != geometry.TiltRight {
			continue
		}
		pair := makePair(left, right)
		if offset := math.Abs(float64(pair.X) - centre); offset < bestOffset {
			best, bestOffset = pair, offset
		}
	}
	return best
}

// makePair sizes the pair by the union bounding box of both rectangles.
func makePair(left, right model.TargetShape) *model.TargetPair {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range [2]model.TargetShape{left, right} {
		for _, p := range s.Corners {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	return &model.TargetPair{
		Left:  left,
		Right: right,
		X:     int(math.Round((minX + maxX) / 2)),
		Y:     int(math.Round((minY + maxY) / 2)),
		W:     int(math.Round(maxX - minX)),
		H:     int(math.Round(maxY - minY)),
	}
}
