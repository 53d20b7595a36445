package sqlite

import (
	"database/sql"
	"fmt"

	"targetvision/internal/dto"
	"targetvision/internal/model"
)

// PoseRepository implements repository.PoseRepository for SQLite.
type PoseRepository struct {
	db *DB
}

// NewPoseRepository creates a new SQLite pose repository.
func NewPoseRepository(db *DB) *PoseRepository {
	return &PoseRepository{db: db}
}

const insertPose = `
	INSERT INTO poses (session_id, timestamp, found, heading, distance, object_yaw, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func poseArgs(rec *model.PoseRecord) []interface{} {
	var heading, distance, yaw sql.NullFloat64
	if rec.Pose != nil {
		heading = sql.NullFloat64{Float64: rec.Pose.Heading, Valid: true}
		distance = sql.NullFloat64{Float64: rec.Pose.Distance, Valid: true}
		yaw = sql.NullFloat64{Float64: rec.Pose.ObjectYaw, Valid: true}
	}
	source := rec.Source
	if source == "" {
		source = "camera"
	}
	return []interface{}{rec.SessionID, rec.Timestamp.UTC(), rec.Found, heading, distance, yaw, source}
}

// Insert adds a new pose record to the database.
func (r *PoseRepository) Insert(rec *model.PoseRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(insertPose, poseArgs(rec)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pose: %w", err)
	}

	return result.LastInsertId()
}

// InsertBatch adds multiple pose records in a single transaction.
func (r *PoseRepository) InsertBatch(records []model.PoseRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertPose)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		if _, err := stmt.Exec(poseArgs(&records[i])...); err != nil {
			return fmt.Errorf("failed to insert pose: %w", err)
		}
	}

	return tx.Commit()
}

// where builds the WHERE clause shared by GetRecent and GetTotalCount.
func where(filter *dto.PoseFilter) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return clause, args
	}

	if filter.SessionID != "" {
		clause += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}

	if filter.Found != nil {
		clause += " AND found = ?"
		args = append(args, *filter.Found)
	}

	if !filter.Since.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}

	return clause, args
}

// GetRecent retrieves pose records newest first.
func (r *PoseRepository) GetRecent(filter *dto.PoseFilter) ([]model.PoseRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := where(filter)
	query := `
		SELECT id, session_id, timestamp, found, heading, distance, object_yaw, source
		FROM poses` + clause + " ORDER BY timestamp DESC, id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query poses: %w", err)
	}
	defer rows.Close()

	records := []model.PoseRecord{}
	for rows.Next() {
		var rec model.PoseRecord
		var heading, distance, yaw sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.Found, &heading, &distance, &yaw, &rec.Source); err != nil {
			return nil, fmt.Errorf("failed to scan pose: %w", err)
		}
		if heading.Valid && distance.Valid && yaw.Valid {
			rec.Pose = &model.RelativePose{
				Heading:   heading.Float64,
				Distance:  distance.Float64,
				ObjectYaw: yaw.Float64,
			}
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetTotalCount returns the total count of poses matching the filter.
func (r *PoseRepository) GetTotalCount(filter *dto.PoseFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := where(filter)

	var count int
	if err := r.db.Conn().QueryRow("SELECT COUNT(*) FROM poses"+clause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count poses: %w", err)
	}
	return count, nil
}

// DeleteAll removes the whole pose history.
func (r *PoseRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM poses`); err != nil {
		return fmt.Errorf("failed to delete poses: %w", err)
	}
	return nil
}
