package model

// Frame is one captured camera image. Whoever holds a Frame owns it and must
// Close it once done; after Close the pixel buffer is gone.
type Frame interface {
	Width() int
	Height() int
	Close() error
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
