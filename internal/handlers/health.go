package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"bitzomax/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`

	// Pipeline info
	TranscodeSupported bool   `json:"transcodeSupported"`
	TranscodeCodec     string `json:"transcodeCodec,omitempty"`
	ActiveSessions     int    `json:"activeSessions"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Catalog summary
	VideosByStatus map[string]int `json:"videosByStatus,omitempty"`
	PremiumVideos  int            `json:"premiumVideos"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		ActiveSessions: h.sessions.len(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if h.transcoder != nil {
		response.TranscodeSupported = h.transcoder.Supported()
		response.TranscodeCodec = h.transcoder.Codec()
	}

	if err := h.ping(r.Context()); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Error = "database unavailable"
		log.Warn("Health check database ping failed: %v", err)
	} else {
		stats := h.db.GetStats()
		response.VideosByStatus = stats.VideosByStatus
		response.PremiumVideos = stats.PremiumVideos
	}

	code := http.StatusOK
	if !response.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONCode(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the database answers
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		writeJSONCode(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSONCode(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *Handlers) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx)
}
