// Package app wires the capture pipeline, pose history and the HTTP
// telemetry surface into one process.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"targetvision/internal/config"
	"targetvision/internal/dto"
	"targetvision/internal/logger"
	"targetvision/internal/repository/sqlite"
	"targetvision/internal/route"
	"targetvision/internal/service/camera"
	"targetvision/internal/service/detector"
	"targetvision/internal/service/pipeline"
	"targetvision/internal/service/pnp"
	"targetvision/internal/service/pnp/cvpnp"
	"targetvision/internal/service/pose"
	"targetvision/internal/service/storage"
	"targetvision/internal/service/telemetry"
	"targetvision/internal/service/tuning"

	"github.com/google/uuid"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	camera   *camera.Source
	recorder *storage.PoseRecorder
	hub      *telemetry.HubService
	renderer *detector.Renderer
	pipeline *pipeline.Pipeline
	server   *http.Server
}

// controls routes telemetry writes to the threshold store and the camera.
type controls struct {
	tuning *tuning.Store
	camera *camera.Source
}

func (c controls) ApplyTuning(u dto.TuningUpdate) (tuning.Snapshot, error) {
	return c.tuning.Apply(u)
}

func (c controls) ApplyCameraConfig(blob json.RawMessage) error {
	return c.camera.ApplyConfig(blob)
}

// InitialThresholds are the default thresholds with the configured minimum
// contour area.
func InitialThresholds(cfg *config.Config) tuning.Thresholds {
	t := tuning.Default()
	t.MinArea = cfg.MinContourArea
	return t
}

// NewSolver returns the configured pose solver: OpenCV's solvePnP, or the
// pure-Go solver for config.SolverGonum.
func NewSolver(cfg *config.Config) pose.Solver {
	if cfg.PoseSolver == config.SolverGonum {
		return pnp.NewSolver(cfg.MaxSolveError)
	}
	return cvpnp.NewSolver(cfg.MaxSolveError)
}

// OpenDatabase creates the database directory and opens the pose history.
func OpenDatabase(cfg *config.Config) (*sqlite.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewApp validates cfg, opens the database and the camera and wires every
// service. Close releases what NewApp acquired.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := tuning.NewStore(InitialThresholds(cfg))
	if err != nil {
		return nil, err
	}

	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	source, err := camera.Open(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessionID := uuid.NewString()
	recorder := storage.NewPoseRecorder(cfg, logger, sessionID,
		sqlite.NewPoseRepository(db), sqlite.NewCameraEventRepository(db))
	hub := telemetry.NewHubService(logger, controls{tuning: store, camera: source})
	renderer := detector.NewRenderer(cfg.DebugDisplay, store, logger)

	p := pipeline.New(cfg, logger, pipeline.Deps{
		Source:    source,
		Detector:  detector.NewDetectorService(store, logger),
		Estimator: pose.NewEstimator(NewSolver(cfg)),
		Telemetry: hub,
		Recorder:  recorder,
		Renderer:  renderer,
	})

	router := route.SetupRoutes(cfg, logger, hub, route.Sources{
		Vision: p,
		Tuning: store,
		Debug:  renderer,
	}, sqlite.NewPoseRepository(db))

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		camera:   source,
		recorder: recorder,
		hub:      hub,
		renderer: renderer,
		pipeline: p,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
		},
	}, nil
}

// Run serves until ctx is done. The pipeline stops first, then the pose
// history is flushed and the HTTP server shut down.
func (a *App) Run(ctx context.Context) error {
	fmt.Printf("🎯 Target Vision Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🔑 Password: %s\n", a.config.Password)
	fmt.Printf("📷 Camera: %s at %dx%d\n", a.config.CameraDevice, a.config.DefaultWidth, a.config.DefaultHeight)
	fmt.Printf("🗄️  Pose history: %s (session %s)\n", a.config.DatabasePath, a.recorder.SessionID())
	fmt.Printf("🖼️  Debug display: %s\n", a.config.DebugDisplay)

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()

	var services sync.WaitGroup
	services.Add(2)
	go func() {
		defer services.Done()
		a.recorder.Run(serviceCtx)
	}()
	go func() {
		defer services.Done()
		a.hub.Run(serviceCtx)
	}()

	// request contexts end with the pipeline so debug streams stop before Shutdown
	pipelineCtx, stopPipeline := context.WithCancel(ctx)
	defer stopPipeline()
	a.server.BaseContext = func(net.Listener) context.Context { return pipelineCtx }

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- a.pipeline.Run(pipelineCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	stopPipeline()
	if err := <-pipelineDone; err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Pipeline stopped with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
		a.server.Close()
	}

	stopServices()
	services.Wait()

	stats := a.pipeline.Stats()
	a.logger.Info("Stopped after %d poses (%d frames dropped, %d telemetry pushes dropped)",
		stats.Poses, stats.Frames.Dropped, a.hub.Dropped())
	return runErr
}

// Close releases the camera, the debug renderer and the database.
func (a *App) Close() error {
	a.renderer.Close()
	camErr := a.camera.Close()
	dbErr := a.db.Close()
	return errors.Join(camErr, dbErr)
}
