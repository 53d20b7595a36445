package handler

import (
	"net/http"

	"targetvision/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TelemetryHub is the part of the telemetry hub a dashboard connection uses.
type TelemetryHub interface {
	Register(client *websocket.Conn)
	Unregister(client *websocket.Conn)
	HandleMessage(data []byte) error
}

// ViewWebsocketHandler handles dashboard connections over WebSocket. Clients
// receive the entry table and its updates; text messages they send are
// tuning or camera config writes.
func ViewWebsocketHandler(hub TelemetryHub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		logger.Info("Dashboard connected from %s", r.RemoteAddr)

		for {
			_, data, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Dashboard disconnected normally")
				} else {
					logger.Error("Dashboard disconnected with error: %v", err)
				}
				break
			}
			if err := hub.HandleMessage(data); err != nil {
				logger.Warning("Rejected telemetry message: %v", err)
			}
		}
	}
}
