package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitzomax/internal/capture"
	"bitzomax/internal/database"
	"bitzomax/internal/filesystem"
	"bitzomax/internal/handlers"
	"bitzomax/internal/logging"
	"bitzomax/internal/media"
	"bitzomax/internal/memory"
	"bitzomax/internal/metrics"
	"bitzomax/internal/middleware"
	"bitzomax/internal/startup"
	"bitzomax/internal/transcoder"
	"bitzomax/internal/uploader"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
	sessionSweepEvery = time.Minute
	uploadDrainWait   = 10 * time.Second
)

// app holds the long-lived components that need an orderly shutdown.
type app struct {
	db         *database.Database
	capture    *capture.FFmpeg
	transcoder *transcoder.Transcoder
	uploader   *uploader.Uploader
	handlers   *handlers.Handlers
	collector  *metrics.Collector
	memory     *memory.Monitor

	server        *http.Server
	metricsServer *http.Server
	stopSweeper   context.CancelFunc
	done          chan struct{}
}

func main() {
	startTime := time.Now()

	if err := startup.LoadEnvFile(".env"); err != nil {
		logging.Warn("%v", err)
	}
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"uploads":  config.UploadDir,
		"database": config.DatabaseDir,
		"temp":     config.TempDir,
	}))
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	ffmpeg := capture.New(capture.Config{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
		TempDir:     config.TempDir,
	})

	transCfg := transcoder.DefaultConfig()
	transCfg.Timeout = config.TranscodeTimeout
	transCfg.Workers = config.TranscodeWorkers
	trans := transcoder.New(ffmpeg, transCfg)
	startup.LogTranscoderInit(config.FFmpegPath, trans.Codec())

	thumbs := media.NewThumbnailer(config.UploadDir, config.FFmpegPath)
	up, err := uploader.New(db, trans, thumbs, config.UploadDir, config.MaxUploadBytes)
	if err != nil {
		logging.Fatal("Failed to initialize uploader: %v", err)
	}
	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	up.SetPressure(memMonitor)

	h := handlers.New(db, trans, up, config)
	if err := h.LoadPolicy(context.Background()); err != nil {
		logging.Warn("Using default transcode policy: %v", err)
	}

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router)

	a := &app{
		db:         db,
		capture:    ffmpeg,
		transcoder: trans,
		uploader:   up,
		handlers:   h,
		collector:  metrics.NewCollector(db, db.Path(), collectorInterval),
		memory:     memMonitor,
		done:       make(chan struct{}),
		server: &http.Server{
			Addr:              ":" + config.Port,
			Handler:           wrapHandler(router, config),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
	}
	a.collector.Start()
	a.memory.Start()

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	go sweepSessions(sweepCtx, h, config.SessionIdleTimeout)

	if config.MetricsEnabled {
		a.metricsServer = newMetricsServer(config.MetricsPort)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go a.handleShutdown()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Server error: %v", err)
	}
	<-a.done
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	// Runs after route matching so requests are labeled by route template.
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Stored videos and thumbnails
	r.HandleFunc("/media/{name}", h.ServeMedia).Methods("GET", "HEAD")

	// Admin routes, registered before /api so the subrouter sees them first
	// Subrouters report a method mismatch as not found unless they have
	// their own handler.
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	admin.Use(middleware.BasicAuth(config.AdminPasswordHash, "bitzomax admin"))
	admin.HandleFunc("/videos", h.UploadVideo).Methods("POST")
	admin.HandleFunc("/transcodes/{id}", h.GetTranscode).Methods("GET")
	admin.HandleFunc("/transcodes/{id}/events", h.TranscodeEvents).Methods("GET")
	admin.HandleFunc("/estimate", h.EstimateSize).Methods("POST")
	admin.HandleFunc("/capabilities", h.Capabilities).Methods("GET")
	admin.HandleFunc("/policy", h.GetPolicy).Methods("GET")
	admin.HandleFunc("/policy", h.UpdatePolicy).Methods("PUT")

	api := r.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Catalog
	api.HandleFunc("/videos", h.ListVideos).Methods("GET")
	api.HandleFunc("/videos/{id}", h.GetVideo).Methods("GET")
	api.HandleFunc("/videos/{id}/related", h.RelatedVideos).Methods("GET")

	// Viewer state
	api.HandleFunc("/me", h.GetMe).Methods("GET")
	api.HandleFunc("/videos/{id}/like", h.ToggleLike).Methods("POST")
	api.HandleFunc("/videos/{id}/favorite", h.AddFavorite).Methods("POST")
	api.HandleFunc("/videos/{id}/favorite", h.RemoveFavorite).Methods("DELETE")
	api.HandleFunc("/videos/{id}/watch", h.RecordWatch).Methods("POST")

	// Subscription
	api.HandleFunc("/subscription", h.GetSubscription).Methods("GET")
	api.HandleFunc("/subscription", h.Subscribe).Methods("POST")
	api.HandleFunc("/subscription", h.CancelSubscription).Methods("DELETE")

	// Playback sessions
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/tick", h.SessionTick).Methods("POST")
	api.HandleFunc("/sessions/{id}/duration", h.SessionDuration).Methods("POST")
	api.HandleFunc("/sessions/{id}/toggle", h.SessionToggle).Methods("POST")
	api.HandleFunc("/sessions/{id}/like", h.SessionLike).Methods("POST")
	api.HandleFunc("/sessions/{id}/favorite", h.SessionFavorite).Methods("POST")
	api.HandleFunc("/sessions/{id}/subscribe", h.SessionSubscribe).Methods("POST")
	api.HandleFunc("/sessions/{id}/transfer", h.SessionTransfer).Methods("POST")

	return r
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// wrapHandler applies the middleware chain, outermost first: CORS,
// request logging, compression.
func wrapHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	handler = middleware.Logger(loggingConfig)(handler)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(config.AllowedOrigins),
		gorillahandlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Range"}),
		gorillahandlers.ExposedHeaders([]string{"Content-Range", "Accept-Ranges", "Content-Length"}),
	)
	return cors(handler)
}

func newMetricsServer(port string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	m.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           m,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// sweepSessions disposes playback sessions nobody has touched for maxIdle,
// which records their watch history.
func sweepSessions(ctx context.Context, h *handlers.Handlers, maxIdle time.Duration) {
	ticker := time.NewTicker(sessionSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ExpireSessions(ctx, maxIdle)
			if err := h.RefreshSubscriptions(ctx); err != nil {
				logging.Warn("Failed to refresh subscription state: %v", err)
			}
		}
	}
}

func (a *app) handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	a.shutdown()
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing playback sessions")
	a.stopSweeper()
	a.handlers.Close(ctx)
	startup.LogShutdownStepComplete("Playback sessions closed")

	startup.LogShutdownStep("Stopping metrics collector")
	a.collector.Stop()
	a.memory.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Canceling transcode jobs")
	a.transcoder.Cleanup()
	if !a.uploader.Wait(uploadDrainWait) {
		logging.Warn("Some conversions were not recorded before shutdown")
	}
	a.uploader.Close()
	a.capture.Cleanup()
	startup.LogShutdownStepComplete("Transcoder stopped")

	if a.metricsServer != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := a.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
	close(a.done)
}
