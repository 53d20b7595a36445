// Package telemetry is the dashboard channel: a table of latest values
// pushed to websocket clients, and inbound tuning and camera config.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"targetvision/internal/dto"
	"targetvision/internal/logger"
	"targetvision/internal/model"
	"targetvision/internal/service/tuning"

	"github.com/gorilla/websocket"
)

const (
	broadcastBuffer = 64
	writeWait       = time.Second
)

var (
	// ErrUnknownMessage is returned by HandleMessage for unsupported types.
	ErrUnknownMessage = errors.New("telemetry: unknown message type")
	// ErrReadOnly is returned for writes to a hub created without controls.
	ErrReadOnly = errors.New("telemetry: hub is read only")
)

// Controls receives the writable entries of the channel.
type Controls interface {
	ApplyTuning(u dto.TuningUpdate) (tuning.Snapshot, error)
	ApplyCameraConfig(blob json.RawMessage) error
}

type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex

	entries   map[string]json.RawMessage
	entriesMu sync.RWMutex
	dropped   atomic.Uint64

	controls Controls
	logger   *logger.Logger
}

// NewHubService creates a hub. controls may be nil, in which case inbound
// writes are rejected.
func NewHubService(logger *logger.Logger, controls Controls) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		entries:    make(map[string]json.RawMessage),
		controls:   controls,
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", h.GetClientCount())
			h.sendTable(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", h.GetClientCount())

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := write(client, message); err != nil {
					h.logger.Warning("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func write(client *websocket.Conn, message []byte) error {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	return client.WriteMessage(websocket.TextMessage, message)
}

// sendTable brings a new client up to date with every entry.
func (h *HubService) sendTable(client *websocket.Conn) {
	h.entriesMu.RLock()
	keys := make([]string, 0, len(h.entries))
	for k := range h.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	messages := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if msg, err := entryMessage(k, h.entries[k]); err == nil {
			messages = append(messages, msg)
		}
	}
	h.entriesMu.RUnlock()

	for _, msg := range messages {
		if err := write(client, msg); err != nil {
			h.logger.Warning("Error sending table to new client: %v", err)
			return
		}
	}
}

// Register adds a client. It returns without effect once the hub stopped.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a client.
func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish stores value under key and pushes it to every client. It never
// blocks: when the hub is behind the push is dropped, the table still
// holds the value.
func (h *HubService) Publish(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	h.entriesMu.Lock()
	h.entries[key] = raw
	h.entriesMu.Unlock()

	msg, err := entryMessage(key, raw)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
	return nil
}

func entryMessage(key string, raw json.RawMessage) ([]byte, error) {
	return json.Marshal(dto.TelemetryMessage{Type: dto.MessageEntry, Key: key, Value: raw})
}

// PublishResolution publishes CameraData as [width, height].
func (h *HubService) PublishResolution(res model.Resolution) {
	if err := h.Publish(dto.EntryCameraData, [2]int{res.Width, res.Height}); err != nil {
		h.logger.Warning("Publishing camera data: %v", err)
	}
}

// PublishPose publishes VisionData: the pose, or "" when there is no target.
func (h *HubService) PublishPose(pose *model.RelativePose) {
	var value interface{} = ""
	if pose != nil {
		value = pose
	}
	if err := h.Publish(dto.EntryVisionData, value); err != nil {
		h.logger.Warning("Publishing vision data: %v", err)
	}
}

// PublishFPS publishes the measured estimation rate.
func (h *HubService) PublishFPS(fps float64) {
	if err := h.Publish(dto.EntryFPS, fps); err != nil {
		h.logger.Warning("Publishing fps: %v", err)
	}
}

// Entry returns the latest value stored under key.
func (h *HubService) Entry(key string) (json.RawMessage, bool) {
	h.entriesMu.RLock()
	defer h.entriesMu.RUnlock()
	raw, ok := h.entries[key]
	return raw, ok
}

// Dropped counts pushes skipped because the hub was busy.
func (h *HubService) Dropped() uint64 {
	return h.dropped.Load()
}

// HandleMessage applies one inbound client message.
func (h *HubService) HandleMessage(data []byte) error {
	var msg dto.TelemetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	switch msg.Type {
	case dto.MessageTuning:
		var u dto.TuningUpdate
		if err := json.Unmarshal(msg.Value, &u); err != nil {
			return fmt.Errorf("decode tuning update: %w", err)
		}
		_, err := h.ApplyTuning(u)
		return err

	case dto.MessageCameraConfig:
		return h.ApplyCameraConfig(msg.Value)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// ApplyTuning forwards a threshold update to the controls and publishes the
// resulting snapshot under the Tuning entry.
func (h *HubService) ApplyTuning(u dto.TuningUpdate) (tuning.Snapshot, error) {
	if h.controls == nil {
		return tuning.Snapshot{}, ErrReadOnly
	}
	snap, err := h.controls.ApplyTuning(u)
	if err != nil {
		return tuning.Snapshot{}, err
	}
	if err := h.Publish(dto.EntryTuning, snap); err != nil {
		h.logger.Warning("Publishing tuning: %v", err)
	}
	return snap, nil
}

// ApplyCameraConfig forwards a camera configuration blob to the controls.
func (h *HubService) ApplyCameraConfig(blob json.RawMessage) error {
	if h.controls == nil {
		return ErrReadOnly
	}
	return h.controls.ApplyCameraConfig(blob)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
