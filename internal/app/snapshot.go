package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"targetvision/internal/config"
	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/repository/sqlite"
	"targetvision/internal/service/camera"
	"targetvision/internal/service/detector"
	"targetvision/internal/service/pose"
	"targetvision/internal/service/storage"
	"targetvision/internal/service/tuning"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// SnapshotResult is the outcome for one image file.
type SnapshotResult struct {
	File string
	Pose *model.RelativePose
	Err  error
}

// ListImages returns the image files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Snapshot runs detection and pose estimation over still images and stores
// every result in the pose history under one session, with the file name as
// source. progress, if set, is called after each file.
func Snapshot(ctx context.Context, cfg *config.Config, logger *logger.Logger, files []string,
	progress func(SnapshotResult)) (string, error) {
	store, err := tuning.NewStore(InitialThresholds(cfg))
	if err != nil {
		return "", err
	}

	db, err := OpenDatabase(cfg)
	if err != nil {
		return "", err
	}
	defer db.Close()

	recorder := storage.NewPoseRecorder(cfg, logger, "",
		sqlite.NewPoseRepository(db), sqlite.NewCameraEventRepository(db))
	runCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		recorder.Run(runCtx)
		close(recorderDone)
	}()
	// Run flushes a final time before it returns
	finish := func() {
		stopRecorder()
		<-recorderDone
	}

	det := detector.NewDetectorService(store, logger)
	est := pose.NewEstimator(NewSolver(cfg))
	intrinsics := pose.NewIntrinsicsCache(cfg.CameraFOVX, cfg.CameraFOVY)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			finish()
			return recorder.SessionID(), err
		}

		result := SnapshotResult{File: filepath.Base(file)}
		frame, err := camera.LoadImage(file)
		if err != nil {
			result.Err = err
		} else {
			k, changed := intrinsics.Update(frame.Width(), frame.Height())
			if changed {
				recorder.RecordResolution(model.Resolution{Width: frame.Width(), Height: frame.Height()})
			}
			result.Pose, result.Err = analyze(det, est, frame, k)
			frame.Close()
			recorder.Record(result.File, result.Pose)
		}

		if result.Err != nil {
			logger.Warning("Snapshot %s: %v", result.File, result.Err)
		}
		if progress != nil {
			progress(result)
		}
	}

	finish()
	if n := recorder.Pending(); n > 0 {
		return recorder.SessionID(), fmt.Errorf("%d pose records could not be stored", n)
	}
	return recorder.SessionID(), nil
}

func analyze(det *detector.DetectorService, est *pose.Estimator, frame *camera.Frame,
	k model.CameraIntrinsics) (*model.RelativePose, error) {
	result, err := det.Detect(frame)
	if err != nil {
		return nil, err
	}
	return est.Estimate(result.Pair, k)
}
