package sqlite

import (
	"fmt"

	"targetvision/internal/model"
)

// CameraEventRepository implements repository.CameraEventRepository for SQLite.
type CameraEventRepository struct {
	db *DB
}

// NewCameraEventRepository creates a new SQLite camera event repository.
func NewCameraEventRepository(db *DB) *CameraEventRepository {
	return &CameraEventRepository{db: db}
}

// Insert records a resolution change.
func (r *CameraEventRepository) Insert(ev *model.CameraEvent) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO camera_events (session_id, timestamp, width, height)
		VALUES (?, ?, ?, ?)
	`, ev.SessionID, ev.Timestamp.UTC(), ev.Width, ev.Height)
	if err != nil {
		return 0, fmt.Errorf("failed to insert camera event: %w", err)
	}

	return result.LastInsertId()
}

// GetAll returns the events of a session in insertion order; an empty
// session id returns every event.
func (r *CameraEventRepository) GetAll(sessionID string) ([]model.CameraEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT id, session_id, timestamp, width, height FROM camera_events`
	args := []interface{}{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id"

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query camera events: %w", err)
	}
	defer rows.Close()

	events := []model.CameraEvent{}
	for rows.Next() {
		var ev model.CameraEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.Width, &ev.Height); err != nil {
			return nil, fmt.Errorf("failed to scan camera event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
