package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bitzomax/internal/capture"
	"bitzomax/internal/database"
	"bitzomax/internal/handlers"
	"bitzomax/internal/metrics"
	"bitzomax/internal/startup"
	"bitzomax/internal/transcoder"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

func setupTestRouter(t *testing.T, config *startup.Config) (*mux.Router, *handlers.Handlers) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	trans := transcoder.New(capture.New(capture.Config{FFmpegPath: "/nonexistent/ffmpeg"}), transcoder.DefaultConfig())
	t.Cleanup(trans.Cleanup)

	config.UploadDir = dir
	if config.PreviewCutoff == 0 {
		config.PreviewCutoff = 30
	}
	h := handlers.New(db, trans, nil, config)
	return setupRouter(h, config), h
}

func TestSetupRouter(t *testing.T) {
	router, _ := setupTestRouter(t, &startup.Config{})

	routes, err := startup.GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	registered := make(map[string]bool)
	for _, r := range routes {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /livez",
		"HEAD /livez",
		"GET /readyz",
		"GET /version",
		"GET /media/{name}",
		"GET /api/videos",
		"GET /api/videos/{id}",
		"GET /api/videos/{id}/related",
		"GET /api/me",
		"POST /api/videos/{id}/like",
		"POST /api/videos/{id}/favorite",
		"DELETE /api/videos/{id}/favorite",
		"POST /api/videos/{id}/watch",
		"GET /api/subscription",
		"POST /api/subscription",
		"DELETE /api/subscription",
		"POST /api/sessions",
		"GET /api/sessions/{id}",
		"DELETE /api/sessions/{id}",
		"POST /api/sessions/{id}/tick",
		"POST /api/sessions/{id}/duration",
		"POST /api/sessions/{id}/toggle",
		"POST /api/sessions/{id}/like",
		"POST /api/sessions/{id}/favorite",
		"POST /api/sessions/{id}/subscribe",
		"POST /api/sessions/{id}/transfer",
		"POST /api/admin/videos",
		"GET /api/admin/transcodes/{id}",
		"GET /api/admin/transcodes/{id}/events",
		"POST /api/admin/estimate",
		"GET /api/admin/capabilities",
		"GET /api/admin/policy",
		"PUT /api/admin/policy",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestRouterServesCatalog(t *testing.T) {
	router, _ := setupTestRouter(t, &startup.Config{})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/videos", http.StatusOK},
		{http.MethodGet, "/api/videos/missing", http.StatusNotFound},
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/api/subscription", http.StatusOK},
		{http.MethodPut, "/api/videos", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/videos/abc/like", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/sessions", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/admin/policy", http.StatusMethodNotAllowed},
		{http.MethodPost, "/livez", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nothing-here", http.StatusNotFound},
		{http.MethodGet, "/media/missing.webm", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	router, _ := setupTestRouter(t, &startup.Config{AdminPasswordHash: string(hash)})

	tests := []struct {
		name     string
		user     string
		password string
		status   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "letmein", http.StatusUnauthorized},
		{"valid", "admin", "letmein", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/policy", http.NoBody)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestAdminRoutesDisabledWithoutHash(t *testing.T) {
	router, _ := setupTestRouter(t, &startup.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/policy", http.NoBody)
	req.SetBasicAuth("admin", "anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestWrapHandlerCORS(t *testing.T) {
	config := &startup.Config{AllowedOrigins: []string{"http://app.example"}}
	router, _ := setupTestRouter(t, config)
	handler := wrapHandler(router, config)

	req := httptest.NewRequest(http.MethodGet, "/api/videos", http.NoBody)
	req.Header.Set("Origin", "http://app.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/videos", http.NoBody)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for a foreign origin", got)
	}
}

func TestMetricsServer(t *testing.T) {
	metrics.InitializeMetrics()
	srv := newMetricsServer("0")

	if srv.ReadHeaderTimeout == 0 || srv.WriteTimeout == 0 {
		t.Errorf("metrics server timeouts not set: %+v", srv)
	}

	for _, path := range []string{"/metrics", "/health"} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}
}

func TestSweepSessionsStopsOnCancel(t *testing.T) {
	_, h := setupTestRouter(t, &startup.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, h, 0)
		close(done)
	}()
	cancel()
	<-done
}
