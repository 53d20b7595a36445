package model

// CameraIntrinsics is the pinhole model derived from resolution and field of
// view. Lens distortion is taken as zero.
type CameraIntrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}
