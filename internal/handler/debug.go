package handler

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"targetvision/internal/logger"
)

const (
	streamBoundary = "frame"
	streamPoll     = 20 * time.Millisecond
)

// DebugImages exposes the last rendered debug JPEG and its sequence number.
// Sequence 0 means nothing has been rendered yet.
type DebugImages interface {
	Latest() ([]byte, uint64)
}

// DebugFrameHandler handles GET /api/debug/frame with the last debug JPEG.
func DebugFrameHandler(images DebugImages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jpeg, seq := images.Latest()
		if seq == 0 {
			http.Error(w, "No debug frame rendered", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
		w.Write(jpeg)
	}
}

// DebugStreamHandler handles GET /api/debug/stream as an MJPEG stream that
// pushes every newly rendered debug frame until the client goes away.
func DebugStreamHandler(images DebugImages, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		mw := multipart.NewWriter(w)
		if err := mw.SetBoundary(streamBoundary); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger.Info("Debug stream opened by %s", r.RemoteAddr)
		defer logger.Info("Debug stream closed for %s", r.RemoteAddr)

		ticker := time.NewTicker(streamPoll)
		defer ticker.Stop()

		var last uint64
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}

			jpeg, seq := images.Latest()
			if seq == last {
				continue
			}
			last = seq

			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(jpeg))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(jpeg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
