package dto

import "encoding/json"

// Telemetry entry keys.
const (
	EntryCameraData = "CameraData"
	EntryVisionData = "VisionData"
	EntryFPS        = "FPS"
	EntryTuning     = "Tuning"
)

// Message types on the telemetry websocket.
const (
	MessageEntry        = "entry"         // server -> client, one table entry
	MessageTuning       = "tuning"        // client -> server, TuningUpdate
	MessageCameraConfig = "camera_config" // client -> server, camera config blob
)

// TelemetryMessage is one websocket frame in either direction.
type TelemetryMessage struct {
	Type  string          `json:"type"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}
