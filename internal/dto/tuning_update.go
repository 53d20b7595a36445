package dto

// TuningUpdate is a partial threshold update. Nil fields keep their current
// value. Keys match the dashboard entry names.
type TuningUpdate struct {
	HueLow        *float64 `json:"HueLow,omitempty"`
	HueHigh       *float64 `json:"HueHigh,omitempty"`
	SatLow        *float64 `json:"SatLow,omitempty"`
	SatHigh       *float64 `json:"SatHigh,omitempty"`
	LuminanceLow  *float64 `json:"LuminanceLow,omitempty"`
	LuminanceHigh *float64 `json:"LuminanceHigh,omitempty"`
	MinArea       *float64 `json:"MinArea,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u TuningUpdate) Empty() bool {
	return u.HueLow == nil && u.HueHigh == nil &&
		u.SatLow == nil && u.SatHigh == nil &&
		u.LuminanceLow == nil && u.LuminanceHigh == nil &&
		u.MinArea == nil
}
