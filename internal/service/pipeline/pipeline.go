// Package pipeline runs the capture, detection and pose tasks, joined by two
// latest-value exchanges. Each stage works on the freshest input and skips
// whatever it could not keep up with.
package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"targetvision/internal/config"
	"targetvision/internal/exchange"
	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/service/pnp"
	"targetvision/internal/service/pose"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("pipeline: already running")

// FrameSource supplies camera frames. Capture may block but must return
// once ctx is done.
type FrameSource interface {
	Capture(ctx context.Context) (model.Frame, error)
}

// Detector finds candidate shapes and the tracked pair in a frame. It must
// not keep the frame after returning.
type Detector interface {
	Detect(frame model.Frame) (model.DetectionResult, error)
}

// Renderer draws debug output for frame number seq before it is released.
type Renderer interface {
	Render(seq uint64, frame model.Frame, result model.DetectionResult)
}

// PoseRenderer is implemented by renderers that overlay the solved pose. The
// pose task calls RenderPose with the seq of the frame the pair came from.
type PoseRenderer interface {
	RenderPose(seq uint64, pair *model.TargetPair, sol *pnp.Solution, k model.CameraIntrinsics)
}

// Estimator turns a pair into a pose; nil pair or failure yields nil.
type Estimator interface {
	Estimate(pair *model.TargetPair, k model.CameraIntrinsics) (*model.RelativePose, error)
}

// SolutionEstimator is implemented by estimators that also report the raw
// solve a PoseRenderer draws from.
type SolutionEstimator interface {
	EstimateSolution(pair *model.TargetPair, k model.CameraIntrinsics) (*model.RelativePose, *pnp.Solution, error)
}

// Telemetry is the fire-and-forget output channel.
type Telemetry interface {
	PublishResolution(res model.Resolution)
	PublishPose(p *model.RelativePose)
	PublishFPS(fps float64)
}

// Recorder keeps the pose history.
type Recorder interface {
	RecordPose(p *model.RelativePose)
	RecordResolution(res model.Resolution)
}

// Deps are the collaborators of a pipeline. Renderer and Recorder are optional.
type Deps struct {
	Source    FrameSource
	Detector  Detector
	Estimator Estimator
	Telemetry Telemetry
	Recorder  Recorder
	Renderer  Renderer
}

// Detection is what the detection task hands to the pose task. The
// intrinsics travel with the pair so both always match the same frame.
type Detection struct {
	Seq        uint64 // frame exchange sequence
	Pair       *model.TargetPair
	Intrinsics model.CameraIntrinsics
}

// Latest is the most recent estimation cycle.
type Latest struct {
	Found      bool                   `json:"found"`
	Pose       *model.RelativePose    `json:"pose,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Intrinsics model.CameraIntrinsics `json:"intrinsics"`
}

// Stats are pipeline counters.
type Stats struct {
	Frames        exchange.Stats `json:"frames"`
	Results       exchange.Stats `json:"results"`
	CaptureErrors uint64         `json:"captureErrors"`
	DetectErrors  uint64         `json:"detectErrors"`
	SolveFailures uint64         `json:"solveFailures"`
	Poses         uint64         `json:"poses"`
	FPS           float64        `json:"fps"`
}

type Pipeline struct {
	deps       Deps
	logger     *logger.Logger
	retryDelay time.Duration
	fpsWindow  time.Duration

	intrinsics   *pose.IntrinsicsCache
	poseRenderer PoseRenderer
	frames     *exchange.Exchange[model.Frame]
	results    *exchange.Exchange[Detection]

	latest        atomic.Pointer[Latest]
	fps           atomic.Uint64 // math.Float64bits
	running       atomic.Bool
	captureErrors atomic.Uint64
	detectErrors  atomic.Uint64
	solveFailures atomic.Uint64
	poses         atomic.Uint64
}

// New wires a pipeline. Frames overwritten before detection are closed.
func New(cfg *config.Config, logger *logger.Logger, deps Deps) *Pipeline {
	p := &Pipeline{
		deps:       deps,
		logger:     logger,
		retryDelay: cfg.CaptureRetryDelay,
		intrinsics: pose.NewIntrinsicsCache(cfg.CameraFOVX, cfg.CameraFOVY),
		results:    exchange.New[Detection](),
	}
	if cfg.MeasureFPS {
		p.fpsWindow = cfg.FPSWindow
	}
	if pr, ok := deps.Renderer.(PoseRenderer); ok {
		p.poseRenderer = pr
	}
	p.frames = exchange.New(exchange.WithDrop(func(f model.Frame) {
		p.release(f)
	}))
	return p
}

// Run starts the three tasks and blocks until ctx is done and all of them
// have exited. No frame is left unreleased when it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		p.captureLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.detectLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.poseLoop(ctx)
	}()

	p.logger.Info("Vision pipeline started")
	wg.Wait()

	p.frames.Close()
	p.results.Close()
	p.logger.Info("Vision pipeline stopped")
	return nil
}

func (p *Pipeline) captureLoop(ctx context.Context) {
	for ctx.Err() == nil {
		frame, err := p.deps.Source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.captureErrors.Add(1)
			p.logger.Warning("Capture failed: %v", err)
			if !sleep(ctx, p.retryDelay) {
				return
			}
			continue
		}
		p.frames.Publish(frame)
	}
}

func (p *Pipeline) detectLoop(ctx context.Context) {
	var last uint64
	for {
		frame, seq, err := p.frames.Consume(ctx, last)
		if err != nil {
			return
		}
		last = seq
		p.detect(seq, frame)
	}
}

// detect runs frame number seq through the detector and releases it.
func (p *Pipeline) detect(seq uint64, frame model.Frame) {
	defer p.release(frame)
	if frame == nil {
		return
	}

	res := model.Resolution{Width: frame.Width(), Height: frame.Height()}
	k, changed := p.intrinsics.Update(res.Width, res.Height)
	if changed {
		p.logger.Info("Camera resolution %dx%d, fx=%.2f fy=%.2f", res.Width, res.Height, k.Fx, k.Fy)
		p.deps.Telemetry.PublishResolution(res)
		if p.deps.Recorder != nil {
			p.deps.Recorder.RecordResolution(res)
		}
	}

	result, err := p.deps.Detector.Detect(frame)
	if err != nil {
		p.detectErrors.Add(1)
		p.logger.Warning("Detection failed: %v", err)
		result = model.DetectionResult{}
	}
	if p.deps.Renderer != nil {
		p.deps.Renderer.Render(seq, frame, result)
	}

	p.results.Publish(Detection{Seq: seq, Pair: result.Pair, Intrinsics: k})
}

func (p *Pipeline) poseLoop(ctx context.Context) {
	var meter *FPSMeter
	if p.fpsWindow > 0 {
		meter = NewFPSMeter(p.fpsWindow)
	}

	var last uint64
	failing := false
	for {
		det, seq, err := p.results.Consume(ctx, last)
		if err != nil {
			return
		}
		last = seq

		estimate, sol, err := p.estimate(det)
		if p.poseRenderer != nil {
			p.poseRenderer.RenderPose(det.Seq, det.Pair, sol, det.Intrinsics)
		}
		if err != nil {
			p.solveFailures.Add(1)
			if !failing {
				p.logger.Warning("Pose estimation failing: %v", err)
				failing = true
			}
			estimate = nil
		} else if failing {
			p.logger.Info("Pose estimation recovered")
			failing = false
		}

		now := time.Now()
		p.latest.Store(&Latest{Found: estimate != nil, Pose: estimate, Timestamp: now, Intrinsics: det.Intrinsics})
		p.poses.Add(1)
		p.deps.Telemetry.PublishPose(estimate)
		if p.deps.Recorder != nil {
			p.deps.Recorder.RecordPose(estimate)
		}

		if meter != nil {
			if rate, ok := meter.Tick(now); ok {
				p.storeFPS(rate)
				p.logger.Info("Pose rate: %.1f fps", rate)
				p.deps.Telemetry.PublishFPS(rate)
			}
		}
	}
}

func (p *Pipeline) estimate(det Detection) (*model.RelativePose, *pnp.Solution, error) {
	if p.poseRenderer != nil {
		if se, ok := p.deps.Estimator.(SolutionEstimator); ok {
			return se.EstimateSolution(det.Pair, det.Intrinsics)
		}
	}
	estimate, err := p.deps.Estimator.Estimate(det.Pair, det.Intrinsics)
	return estimate, nil, err
}

func (p *Pipeline) storeFPS(v float64) { p.fps.Store(math.Float64bits(v)) }

func (p *Pipeline) loadFPS() float64 { return math.Float64frombits(p.fps.Load()) }

func (p *Pipeline) release(f model.Frame) {
	if f == nil {
		return
	}
	if err := f.Close(); err != nil {
		p.logger.Warning("Releasing frame: %v", err)
	}
}

// Latest returns the last estimation cycle, or nil before the first one.
func (p *Pipeline) Latest() *Latest {
	return p.latest.Load()
}

// Intrinsics returns the intrinsics of the current resolution.
func (p *Pipeline) Intrinsics() (model.CameraIntrinsics, model.Resolution, bool) {
	return p.intrinsics.Current()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:        p.frames.Stats(),
		Results:       p.results.Stats(),
		CaptureErrors: p.captureErrors.Load(),
		DetectErrors:  p.detectErrors.Load(),
		SolveFailures: p.solveFailures.Load(),
		Poses:         p.poses.Load(),
		FPS:           p.loadFPS(),
	}
}

// sleep waits d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
