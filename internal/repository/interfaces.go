package repository

import (
	"targetvision/internal/dto"
	"targetvision/internal/model"
)

// PoseRepository defines the interface for pose history operations.
type PoseRepository interface {
	// Create operations
	Insert(rec *model.PoseRecord) (int64, error)
	InsertBatch(records []model.PoseRecord) error

	// Read operations
	GetRecent(filter *dto.PoseFilter) ([]model.PoseRecord, error)
	GetTotalCount(filter *dto.PoseFilter) (int, error)

	// Delete operations
	DeleteAll() error
}

// CameraEventRepository defines the interface for resolution change records.
type CameraEventRepository interface {
	Insert(ev *model.CameraEvent) (int64, error)
	GetAll(sessionID string) ([]model.CameraEvent, error)
}
