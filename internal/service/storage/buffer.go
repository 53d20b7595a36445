package storage

import (
	"context"
	"sync"
	"time"

	"targetvision/internal/config"
	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/repository"

	"github.com/google/uuid"
)

const (
	// PoseBufferLimit is the default number of poses buffered before an early flush.
	PoseBufferLimit = 50
	// PoseFlushInterval is the default time between periodic flushes.
	PoseFlushInterval = 10 * time.Second

	// SourceCamera marks poses computed from the live camera.
	SourceCamera = "camera"

	// the buffer stops accepting records at this multiple of the limit
	// while the database is unavailable
	overflowFactor = 4
)

// PoseRecorder buffers pose records in memory and periodically writes them
// to the pose history. Recording never waits on the database.
type PoseRecorder struct {
	sessionID string
	limit     int
	interval  time.Duration
	poses     []model.PoseRecord
	events    []model.CameraEvent
	dropped   int
	flushNow  chan struct{}
	mu        sync.Mutex
	flushMu   sync.Mutex
	failing   bool // last pose write failed; guarded by flushMu
	now       func() time.Time
	logger    *logger.Logger
	poseRepo  repository.PoseRepository
	eventRepo repository.CameraEventRepository
}

// NewPoseRecorder creates a recorder for one session. An empty sessionID
// gets a fresh random one.
func NewPoseRecorder(config *config.Config, logger *logger.Logger, sessionID string,
	poseRepo repository.PoseRepository, eventRepo repository.CameraEventRepository) *PoseRecorder {
	limit := config.PoseBufferLimit
	if limit <= 0 {
		limit = PoseBufferLimit
	}
	interval := config.PoseFlushInterval
	if interval <= 0 {
		interval = PoseFlushInterval
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &PoseRecorder{
		sessionID: sessionID,
		limit:     limit,
		interval:  interval,
		poses:     make([]model.PoseRecord, 0, limit),
		flushNow:  make(chan struct{}, 1),
		now:       time.Now,
		logger:    logger,
		poseRepo:  poseRepo,
		eventRepo: eventRepo,
	}
}

// SessionID identifies this run in the pose history.
func (s *PoseRecorder) SessionID() string {
	return s.sessionID
}

// Run flushes on a ticker and whenever the buffer fills, until ctx is done.
// It flushes once more before returning.
func (s *PoseRecorder) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		case <-s.flushNow:
			s.Flush()
		}
	}
}

// RecordPose appends a live camera pose; nil records a cycle with no target.
func (s *PoseRecorder) RecordPose(pose *model.RelativePose) {
	s.Record(SourceCamera, pose)
}

// Record appends a pose from the given source.
func (s *PoseRecorder) Record(source string, pose *model.RelativePose) {
	rec := model.PoseRecord{
		SessionID: s.sessionID,
		Timestamp: s.now(),
		Found:     pose != nil,
		Source:    source,
	}
	if pose != nil {
		p := *pose
		rec.Pose = &p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.poses) >= s.limit*overflowFactor {
		s.dropped++
		return
	}
	s.poses = append(s.poses, rec)
	if len(s.poses) >= s.limit {
		select {
		case s.flushNow <- struct{}{}:
		default:
		}
	}
}

// RecordResolution appends a camera resolution change.
func (s *PoseRecorder) RecordResolution(res model.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, model.CameraEvent{
		SessionID: s.sessionID,
		Timestamp: s.now(),
		Width:     res.Width,
		Height:    res.Height,
	})
}

// Pending returns the number of buffered pose records.
func (s *PoseRecorder) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.poses)
}

// Flush writes buffered records to the repositories. Records that fail to
// write are put back and retried on the next flush.
func (s *PoseRecorder) Flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	poses, events, dropped := s.poses, s.events, s.dropped
	s.poses = make([]model.PoseRecord, 0, s.limit)
	s.events = nil
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warning("Pose buffer full, dropped %d records", dropped)
	}

	if len(events) > 0 && s.eventRepo != nil {
		for i := range events {
			if _, err := s.eventRepo.Insert(&events[i]); err != nil {
				s.logger.Error("Error saving camera event: %v", err)
				s.requeue(nil, events[i:])
				break
			}
		}
	}

	if len(poses) == 0 || s.poseRepo == nil {
		return
	}
	if err := s.poseRepo.InsertBatch(poses); err != nil {
		s.logger.Error("Error saving %d poses to database: %v", len(poses), err)
		s.requeue(poses, nil)
		s.failing = true
		return
	}

	if s.failing {
		s.logger.Info("Pose history writes recovered, flushed %d poses", len(poses))
		s.failing = false
	}
}

// requeue puts unsaved records back in front of anything recorded since.
func (s *PoseRecorder) requeue(poses []model.PoseRecord, events []model.CameraEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(poses) > 0 {
		merged := append(poses, s.poses...)
		if limit := s.limit * overflowFactor; len(merged) > limit {
			s.dropped += len(merged) - limit
			merged = merged[len(merged)-limit:]
		}
		s.poses = merged
	}
	if len(events) > 0 {
		s.events = append(events, s.events...)
	}
}
