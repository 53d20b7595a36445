package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := AuthMiddleware(next)

	tests := []struct {
		name   string
		method string
		path   string
		cookie bool
		status int
	}{
		{name: "vision read", method: http.MethodGet, path: "/api/vision", status: http.StatusTeapot},
		{name: "poses read", method: http.MethodGet, path: "/api/poses", status: http.StatusTeapot},
		{name: "login", method: http.MethodPost, path: "/auth/login", status: http.StatusTeapot},
		{name: "static", method: http.MethodGet, path: "/static/app.js", status: http.StatusTeapot},
		{name: "tuning write", method: http.MethodPut, path: "/api/tuning", status: http.StatusUnauthorized},
		{name: "clear poses", method: http.MethodPost, path: "/api/poses/clear", status: http.StatusUnauthorized},
		{name: "logs page", method: http.MethodGet, path: "/logs/info", status: http.StatusSeeOther},
		{name: "tuning write with cookie", method: http.MethodPut, path: "/api/tuning", cookie: true, status: http.StatusTeapot},
		{name: "logs with cookie", method: http.MethodPost, path: "/logs/info/clear", cookie: true, status: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "true"})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.status, rr.Code)
			}
			if tt.status == http.StatusSeeOther && rr.Header().Get("Location") != "/login" {
				t.Errorf("Expected redirect to /login, got %q", rr.Header().Get("Location"))
			}
		})
	}
}

func TestAuthMiddleware_WrongCookieValue(t *testing.T) {
	h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPut, "/api/camera/config", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "yes"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}
