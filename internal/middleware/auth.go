package middleware

import (
	"net/http"
	"strings"
)

// AuthCookie must match the cookie issued by the login handler.
const AuthCookie = "authenticated"

// AuthMiddleware checks the 'authenticated=true' cookie on requests that
// change state or expose logs. Telemetry reads, the debug stream and the
// login flow stay open so the dashboard works without a session.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresAuth(r) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(AuthCookie)
		if err != nil || cookie.Value != "true" {
			// AJAX/API callers get 401, browsers are sent to the login page
			if r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" ||
				strings.HasPrefix(r.URL.Path, "/api/") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requiresAuth(r *http.Request) bool {
	path := r.URL.Path
	if path == "/login" || strings.HasPrefix(path, "/auth/") || strings.HasPrefix(path, "/static/") {
		return false
	}
	if strings.HasPrefix(path, "/logs/") {
		return true
	}
	// the websocket upgrade is a GET, so socket writes are not cookie guarded
	return r.Method != http.MethodGet && r.Method != http.MethodHead
}
