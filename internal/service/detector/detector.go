// Package detector finds the retro-reflective strips in a frame: HLS
// threshold, external contours, minimum-area rectangles.
package detector

import (
	"errors"
	"fmt"
	"image"
	"math"

	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/service/camera"
	"targetvision/internal/service/target"
	"targetvision/internal/service/tuning"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrUnsupportedFrame is returned for frames not captured by the camera package.
var ErrUnsupportedFrame = errors.New("detector: frame has no OpenCV image")

// Thresholds provides the current tuning, read once per frame.
type Thresholds interface {
	Snapshot() tuning.Snapshot
}

type DetectorService struct {
	thresholds Thresholds
	logger     *logger.Logger
	version    uint64 // last tuning version seen; detection task only
}

// NewDetectorService creates a detector reading thresholds from t.
func NewDetectorService(t Thresholds, logger *logger.Logger) *DetectorService {
	return &DetectorService{thresholds: t, logger: logger}
}

// Detect returns every strip candidate and the pair selected from them.
func (s *DetectorService) Detect(frame model.Frame) (model.DetectionResult, error) {
	f, ok := frame.(*camera.Frame)
	if !ok {
		return model.DetectionResult{}, ErrUnsupportedFrame
	}

	snap := s.thresholds.Snapshot()
	if snap.Version != s.version {
		s.logger.Info("Using thresholds v%d: hue %v sat %v lum %v area %.0f",
			snap.Version, snap.Hue, snap.Saturation, snap.Luminance, snap.MinArea)
		s.version = snap.Version
	}

	mask, err := Mask(f.Mat(), snap.Thresholds)
	if err != nil {
		return model.DetectionResult{}, err
	}
	defer mask.Close()

	shapes := findShapes(mask, snap.MinArea)
	return model.DetectionResult{
		Shapes: shapes,
		Pair:   target.SelectPair(shapes, f.Width()),
	}, nil
}

// Mask thresholds a BGR image in HLS space. The caller closes the result.
func Mask(src gocv.Mat, t tuning.Thresholds) (gocv.Mat, error) {
	hls := gocv.NewMat()
	defer hls.Close()
	if err := gocv.CvtColor(src, &hls, gocv.ColorBGRToHLS); err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image to HLS: %w", err)
	}

	// OpenCV orders the channels H, L, S.
	low := gocv.NewScalar(t.Hue[0], t.Luminance[0], t.Saturation[0], 0)
	high := gocv.NewScalar(t.Hue[1], t.Luminance[1], t.Saturation[1], 0)

	mask := gocv.NewMat()
	if err := gocv.InRangeWithScalar(hls, low, high, &mask); err != nil {
		mask.Close()
		return gocv.Mat{}, fmt.Errorf("failed to threshold image: %w", err)
	}
	return mask, nil
}

// findShapes fits a rotated rectangle to every external contour of at least
// minArea pixels.
func findShapes(mask gocv.Mat, minArea float64) []model.TargetShape {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var shapes []model.TargetShape
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < minArea {
			continue
		}

		rect := gocv.MinAreaRect2f(contour)
		if len(rect.Points) != 4 {
			continue
		}
		shapes = append(shapes, toShape(rect, contour.ToPoints(), area))
	}
	return shapes
}

// toShape keeps the sub-pixel corners. Rounding them to whole pixels can
// flip a small target's solve onto the mirrored pose.
func toShape(rect gocv.RotatedRect2f, contour []image.Point, area float64) model.TargetShape {
	var corners [4]r2.Vec
	for i, p := range rect.Points {
		corners[i] = r2.Vec{X: float64(p.X), Y: float64(p.Y)}
	}
	return model.TargetShape{
		Corners: corners,
		Contour: contour,
		X:       int(math.Round(float64(rect.Center.X))),
		Y:       int(math.Round(float64(rect.Center.Y))),
		W:       rect.BoundingRect.Dx(),
		H:       rect.BoundingRect.Dy(),
		Angle:   rect.Angle,
		Area:    area,
	}
}
