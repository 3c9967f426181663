package handlers

import (
	"context"
	"time"

	"bitzomax/internal/database"
	"bitzomax/internal/logging"
	"bitzomax/internal/startup"
	"bitzomax/internal/transcoder"
	"bitzomax/internal/uploader"
)

var log = logging.For("handlers")

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	db         *database.Database
	transcoder *transcoder.Transcoder
	uploader   *uploader.Uploader
	sessions   *sessionRegistry

	uploadDir      string
	maxUploadBytes int64
	previewCutoff  float64
	startTime      time.Time
}

// New wires the handlers. up may be nil when uploads are disabled.
func New(db *database.Database, trans *transcoder.Transcoder, up *uploader.Uploader, config *startup.Config) *Handlers {
	return &Handlers{
		db:             db,
		transcoder:     trans,
		uploader:       up,
		sessions:       newSessionRegistry(),
		uploadDir:      config.UploadDir,
		maxUploadBytes: config.MaxUploadBytes,
		previewCutoff:  config.PreviewCutoff,
		startTime:      time.Now(),
	}
}

// ExpireSessions disposes playback sessions idle for longer than maxIdle
// and returns how many were removed.
func (h *Handlers) ExpireSessions(ctx context.Context, maxIdle time.Duration) int {
	expired := h.sessions.expire(time.Now().Add(-maxIdle))
	for _, ls := range expired {
		ls.session.Dispose(ctx)
	}
	if len(expired) > 0 {
		log.Info("Expired %d idle playback sessions", len(expired))
	}
	return len(expired)
}

// RefreshSubscriptions re-reads the subscription state and forwards it to
// open sessions, so a plan that lapses re-arms their preview gate.
func (h *Handlers) RefreshSubscriptions(ctx context.Context) error {
	if h.sessions.len() == 0 {
		return nil
	}
	subscribed, err := h.db.IsSubscribed(ctx)
	if err != nil {
		return err
	}
	h.sessions.setSubscribed(subscribed)
	return nil
}

// Close disposes every open playback session so their watch time is
// recorded before shutdown.
func (h *Handlers) Close(ctx context.Context) {
	for _, ls := range h.sessions.drain() {
		ls.session.Dispose(ctx)
	}
}
