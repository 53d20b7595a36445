package handler

import (
	"encoding/json"
	"net/http"

	"targetvision/internal/logger"
	"targetvision/internal/service/pipeline"
)

// VisionSource exposes the running pipeline's latest cycle and counters.
type VisionSource interface {
	Latest() *pipeline.Latest
	Stats() pipeline.Stats
}

// VisionResponse is the /api/vision response body. Latest is null until the
// first estimation cycle completes.
type VisionResponse struct {
	Latest *pipeline.Latest `json:"latest"`
	Stats  pipeline.Stats   `json:"stats"`
}

// VisionHandler handles GET /api/vision.
func VisionHandler(source VisionSource, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, http.StatusOK, VisionResponse{
			Latest: source.Latest(),
			Stats:  source.Stats(),
		})
	}
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
