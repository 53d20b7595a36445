package handler

import (
	"net/http"
	"strconv"
	"time"

	"targetvision/internal/dto"
	"targetvision/internal/logger"
	"targetvision/internal/repository"
)

const (
	defaultPoseLimit = 50
	maxPoseLimit     = 1000
)

// PosesHandler handles GET /api/poses. Query parameters: limit, offset,
// session, found (true|false), since (RFC 3339).
func PosesHandler(poseRepo repository.PoseRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		filter := &dto.PoseFilter{
			SessionID: q.Get("session"),
			Found:     parseBool(q.Get("found")),
			Since:     parseTimestamp(q.Get("since")),
			Limit:     atoiDefault(q.Get("limit"), defaultPoseLimit),
			Offset:    atoiDefault(q.Get("offset"), 0),
		}
		if filter.Limit == 0 {
			filter.Limit = defaultPoseLimit
		}
		if filter.Limit > maxPoseLimit {
			filter.Limit = maxPoseLimit
		}

		poses, err := poseRepo.GetRecent(filter)
		if err != nil {
			logger.Error("Error querying poses from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		total, err := poseRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting poses: %v", err)
			total = len(poses)
		}

		writeJSON(w, logger, http.StatusOK, dto.PosePage{
			Poses:  poses,
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		})
	}
}

// ClearPosesHandler handles POST /api/poses/clear by deleting the whole history.
func ClearPosesHandler(poseRepo repository.PoseRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := poseRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing pose history: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		logger.Info("Pose history cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value < 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// parseBool returns nil for an empty or malformed value.
func parseBool(v string) *bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// parseTimestamp parses an RFC 3339 time; zero when absent or malformed.
func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
