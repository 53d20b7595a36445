package route

import (
	"net/http"
	"os"
	"path/filepath"

	"targetvision/internal/config"
	"targetvision/internal/handler"
	"targetvision/internal/logger"
	"targetvision/internal/middleware"
	"targetvision/internal/repository"
	"targetvision/internal/service/telemetry"
)

// StaticDir holds the dashboard pages and assets.
const StaticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(StaticDir, filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// Sources are the read sides the HTTP surface exposes.
type Sources struct {
	Vision handler.VisionSource
	Tuning handler.TuningReader
	Debug  handler.DebugImages
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, hub *telemetry.HubService,
	src Sources, poseRepo repository.PoseRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(StaticDir))))

	// Telemetry
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))
	mux.HandleFunc("/api/vision", handler.VisionHandler(src.Vision, logger))
	mux.HandleFunc("/api/tuning", handler.TuningHandler(src.Tuning, hub, logger))
	mux.HandleFunc("/api/camera/config", handler.CameraConfigHandler(hub, logger))

	// Pose history
	mux.HandleFunc("/api/poses", handler.PosesHandler(poseRepo, logger))
	mux.HandleFunc("/api/poses/clear", handler.ClearPosesHandler(poseRepo, logger))

	// Debug images
	mux.HandleFunc("/api/debug/frame", handler.DebugFrameHandler(src.Debug))
	mux.HandleFunc("/api/debug/stream", handler.DebugStreamHandler(src.Debug, logger))

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowInfoLogsHandler(cfg))
	mux.HandleFunc("/logs/warning", handler.ShowWarningLogsHandler(cfg))
	mux.HandleFunc("/logs/error", handler.ShowErrorLogsHandler(cfg))

	mux.HandleFunc("/logs/info/clear", handler.ClearInfoLogsHandler(logger))
	mux.HandleFunc("/logs/warning/clear", handler.ClearWarningLogsHandler(logger))
	mux.HandleFunc("/logs/error/clear", handler.ClearErrorLogsHandler(logger))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return middleware.AuthMiddleware(mux)
}
