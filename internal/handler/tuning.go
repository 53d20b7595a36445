package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"targetvision/internal/dto"
	"targetvision/internal/logger"
	"targetvision/internal/service/tuning"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// TuningReader returns the thresholds currently used by the detector.
type TuningReader interface {
	Snapshot() tuning.Snapshot
}

// Controls applies writes coming from the HTTP API. The telemetry hub
// implements it so HTTP writes are broadcast like websocket ones.
type Controls interface {
	ApplyTuning(u dto.TuningUpdate) (tuning.Snapshot, error)
	ApplyCameraConfig(blob json.RawMessage) error
}

// TuningHandler handles GET /api/tuning (current snapshot) and PUT
// /api/tuning (partial update, answered with the new snapshot).
func TuningHandler(reader TuningReader, controls Controls, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, logger, http.StatusOK, reader.Snapshot())

		case http.MethodPut:
			var u dto.TuningUpdate
			if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&u); err != nil {
				http.Error(w, "Invalid tuning update", http.StatusBadRequest)
				return
			}
			snap, err := controls.ApplyTuning(u)
			if err != nil {
				if errors.Is(err, tuning.ErrInvalid) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				logger.Error("Applying tuning update: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			logger.Info("Tuning updated to version %d", snap.Version)
			writeJSON(w, logger, http.StatusOK, snap)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// CameraConfigHandler handles PUT /api/camera/config with a camera
// configuration blob. A rejected blob leaves the camera as it was.
func CameraConfigHandler(controls Controls, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		blob, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Unable to read body", http.StatusBadRequest)
			return
		}
		if !json.Valid(blob) {
			http.Error(w, "Invalid camera config", http.StatusBadRequest)
			return
		}
		if err := controls.ApplyCameraConfig(blob); err != nil {
			logger.Warning("Camera config rejected: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
