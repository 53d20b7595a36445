package model

import "time"

// RelativePose is the camera-relative position of the target.
type RelativePose struct {
	Heading   float64 `json:"heading"`   // degrees, positive to the right
	Distance  float64 `json:"distance"`  // inches, horizontal plane
	ObjectYaw float64 `json:"objectYaw"` // degrees, target rotation about vertical
}

// PoseRecord is one estimation cycle as stored in the pose history.
type PoseRecord struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Found     bool          `json:"found"`
	Pose      *RelativePose `json:"pose,omitempty"`
	Source    string        `json:"source"` // "camera" or an image file name
}

// CameraEvent records a resolution change observed by the detection task.
type CameraEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}
