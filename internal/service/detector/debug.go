package detector

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"targetvision/internal/config"
	"targetvision/internal/geometry"
	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/service/camera"
	"targetvision/internal/service/pnp"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	red     = color.RGBA{R: 255}
	green   = color.RGBA{G: 255}
	blue    = color.RGBA{B: 255}
	yellow  = color.RGBA{R: 255, G: 255}
	cyan    = color.RGBA{G: 255, B: 255}
	magenta = color.RGBA{R: 255, B: 255}
)

// AxisLength is the length of the drawn pose axes in world units (inches).
const AxisLength = 10

// axisPoints are the world origin and the X, Y and Z axis ends.
var axisPoints = []r3.Vec{{}, {X: AxisLength}, {Y: AxisLength}, {Z: AxisLength}}

// Renderer draws the debug view and keeps the latest JPEG for the HTTP
// stream. Most modes render in the detection task. DebugFullPnP stages the
// annotated frame there and is completed by RenderPose in the pose task.
type Renderer struct {
	mode       string
	thresholds Thresholds
	logger     *logger.Logger

	mu        sync.RWMutex
	jpeg      []byte
	seq       uint64
	fails     int
	staged    gocv.Mat
	stagedSeq uint64
	hasStaged bool
}

// NewRenderer creates a renderer for one of the config.Debug* modes.
func NewRenderer(mode string, t Thresholds, logger *logger.Logger) *Renderer {
	return &Renderer{mode: mode, thresholds: t, logger: logger}
}

// Render draws result over frame number seq and stores the encoded image.
// Errors are logged once per streak.
func (r *Renderer) Render(seq uint64, frame model.Frame, result model.DetectionResult) {
	if r.mode == config.DebugNone {
		return
	}
	f, ok := frame.(*camera.Frame)
	if !ok {
		return
	}

	if r.mode == config.DebugFullPnP {
		r.stage(seq, f.Mat(), result.Pair)
		return
	}
	buf, err := r.draw(f.Mat(), result)
	r.store(buf, err)
}

// RenderPose finishes the image staged for frame seq with the solved axes
// and publishes it. sol is nil when the solve failed; the contours and
// corners are still shown. Calls for any other frame are ignored.
func (r *Renderer) RenderPose(seq uint64, pair *model.TargetPair, sol *pnp.Solution, k model.CameraIntrinsics) {
	if r.mode != config.DebugFullPnP {
		return
	}
	r.mu.Lock()
	if !r.hasStaged || r.stagedSeq != seq {
		r.mu.Unlock()
		return
	}
	img := r.staged
	r.hasStaged = false
	r.mu.Unlock()
	defer img.Close()

	if pair != nil && sol != nil {
		drawAxes(&img, *sol, k)
	}
	r.store(encode(img))
}

// Close releases a staged image that never reached the pose task.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasStaged {
		r.staged.Close()
		r.hasStaged = false
	}
}

func (r *Renderer) stage(seq uint64, src gocv.Mat, pair *model.TargetPair) {
	img := src.Clone()
	if pair != nil {
		drawShapeContours(&img, []model.TargetShape{pair.Left, pair.Right}, magenta, 2)
		drawCornerRoles(&img, pair)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasStaged {
		r.staged.Close()
	}
	r.staged, r.stagedSeq, r.hasStaged = img, seq, true
}

func (r *Renderer) store(buf []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.fails == 0 {
			r.logger.Warning("Debug render failed: %v", err)
		}
		r.fails++
		return
	}
	r.fails = 0
	r.jpeg = buf
	r.seq++
}

// Latest returns the last rendered JPEG and its sequence number; seq is 0
// before the first image.
func (r *Renderer) Latest() ([]byte, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jpeg, r.seq
}

func (r *Renderer) draw(src gocv.Mat, result model.DetectionResult) ([]byte, error) {
	var img gocv.Mat
	if r.mode == config.DebugMask {
		mask, err := Mask(src, r.thresholds.Snapshot().Thresholds)
		if err != nil {
			return nil, err
		}
		img = mask
	} else {
		img = src.Clone()
	}
	defer img.Close()

	switch r.mode {
	case config.DebugBoundingBox:
		drawBoxes(&img, result)
	case config.DebugCorners:
		drawCorners(&img, result.Pair)
	case config.DebugContours:
		drawContours(&img, result.Shapes)
	}

	return encode(img)
}

func drawBoxes(img *gocv.Mat, result model.DetectionResult) {
	for _, s := range result.Shapes {
		gocv.Rectangle(img, box(s.X, s.Y, s.W, s.H), blue, 1)
	}
	if p := result.Pair; p != nil {
		gocv.Rectangle(img, box(p.X, p.Y, p.W, p.H), green, 2)
		gocv.Circle(img, image.Pt(p.X, p.Y), 2, red, -1)
	}
}

func drawCorners(img *gocv.Mat, pair *model.TargetPair) {
	if pair == nil {
		return
	}
	for i, pt := range geometry.ImagePoints(pair) {
		p := image.Pt(int(pt.X), int(pt.Y))
		gocv.Circle(img, p, 3, red, -1)
		gocv.PutText(img, fmt.Sprint(i), p.Add(image.Pt(4, -4)), gocv.FontHersheySimplex, 0.35, yellow, 1)
	}
}

// drawCornerRoles marks each strip's left, right, bottom and top corner in
// red, green, blue and cyan.
func drawCornerRoles(img *gocv.Mat, pair *model.TargetPair) {
	roles := []color.RGBA{red, green, blue, cyan}
	for i, pt := range geometry.ImagePoints(pair) {
		gocv.Circle(img, pixel(pt), 2, roles[i%len(roles)], -1)
	}
}

// drawAxes projects the target's X, Y and Z axes through sol and draws them
// from the target origin in red, green and blue.
func drawAxes(img *gocv.Mat, sol pnp.Solution, k model.CameraIntrinsics) {
	pts, ok := pnp.Project(axisPoints, sol.Rotation, sol.Translation, k)
	if !ok {
		return
	}
	origin := pixel(pts[0])
	for i, c := range []color.RGBA{red, green, blue} {
		gocv.Line(img, origin, pixel(pts[i+1]), c, 2)
	}
}

func pixel(p r2.Vec) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

func drawContours(img *gocv.Mat, shapes []model.TargetShape) {
	drawShapeContours(img, shapes, green, 1)
}

func drawShapeContours(img *gocv.Mat, shapes []model.TargetShape, c color.RGBA, thickness int) {
	pts := make([][]image.Point, 0, len(shapes))
	for _, s := range shapes {
		if len(s.Contour) > 0 {
			pts = append(pts, s.Contour)
		}
	}
	if len(pts) == 0 {
		return
	}
	contours := gocv.NewPointsVectorFromPoints(pts)
	defer contours.Close()
	gocv.DrawContours(img, contours, -1, c, thickness)
}

func box(cx, cy, w, h int) image.Rectangle {
	return image.Rect(cx-w/2, cy-h/2, cx+w-w/2, cy+h-h/2)
}

func encode(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
