package pipeline

import "time"

// FPSMeter counts iterations over a fixed window.
type FPSMeter struct {
	window time.Duration
	start  time.Time
	count  int
}

// NewFPSMeter creates a meter that reports once per window.
func NewFPSMeter(window time.Duration) *FPSMeter {
	return &FPSMeter{window: window}
}

// Tick counts one iteration at now. When a window has elapsed it returns the
// rate over that window and starts the next one.
func (m *FPSMeter) Tick(now time.Time) (float64, bool) {
	if m.start.IsZero() {
		m.start = now
	}
	m.count++

	elapsed := now.Sub(m.start)
	if elapsed < m.window || elapsed <= 0 {
		return 0, false
	}
	rate := float64(m.count) / elapsed.Seconds()
	m.start = now
	m.count = 0
	return rate, true
}
