package dto

import "time"

// PoseFilter selects pose history rows. Zero values mean "no constraint".
type PoseFilter struct {
	SessionID string
	Found     *bool
	Since     time.Time
	Limit     int
	Offset    int
}
