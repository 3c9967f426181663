package handlers

import (
	"context"
	"errors"
	"net/http"

	"bitzomax/internal/database"
	"bitzomax/internal/playback"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CreateSessionRequest opens a playback session.
type CreateSessionRequest struct {
	VideoID string `json:"videoId"`
	Primary bool   `json:"primary"`
}

// TickRequest reports the client element's current time.
type TickRequest struct {
	CurrentTime float64 `json:"currentTime"`
}

// DurationRequest reports the duration the client element discovered.
type DurationRequest struct {
	Seconds float64 `json:"seconds"`
}

// SessionResponse carries the session state and the commands the client
// must apply to its media element.
type SessionResponse struct {
	ID       string         `json:"id"`
	State    playback.State `json:"state"`
	Commands []Command      `json:"commands"`
	Error    string         `json:"error,omitempty"`
}

func writeSession(w http.ResponseWriter, code int, ls *liveSession, err error) {
	resp := SessionResponse{
		ID:       ls.id,
		State:    ls.session.State(),
		Commands: ls.currentElement().drain(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSONCode(w, code, resp)
}

// sessionError maps playback errors to status codes.
func sessionError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, playback.ErrSubscriptionRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, playback.ErrPlayRejected):
		return http.StatusConflict
	case errors.Is(err, playback.ErrDisposed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// CreateSession opens a playback session for a video. A primary session
// counts as a view.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.VideoID == "" {
		writeJSONError(w, "videoId is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	el := &remoteElement{}
	s, err := playback.New(ctx, playback.Options{
		VideoID:      req.VideoID,
		Primary:      req.Primary,
		Element:      el,
		Catalog:      h.db,
		User:         h.db,
		Subscription: h.db,
		Cutoff:       h.previewCutoff,
	})
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("Failed to open playback session for %s: %v", req.VideoID, err)
		writeJSONError(w, "Failed to open session", http.StatusInternalServerError)
		return
	}

	if req.Primary {
		if err := h.db.IncrementViews(ctx, req.VideoID); err != nil {
			log.Warn("Failed to count view of %s: %v", req.VideoID, err)
		}
	}

	ls := &liveSession{id: uuid.NewString(), session: s, element: el}
	h.sessions.add(ls)
	log.Debug("Opened playback session %s for video %s (primary=%v)", ls.id, req.VideoID, req.Primary)

	writeSession(w, http.StatusCreated, ls, nil)
}

// GetSession returns the session state and any pending commands.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	writeSession(w, http.StatusOK, ls, nil)
}

// SessionTick reports the element's current time. Crossing the preview
// limit queues a pause command.
func (h *Handlers) SessionTick(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req TickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ls.currentElement().report(req.CurrentTime)
	ls.session.OnTimeTick(req.CurrentTime)
	writeSession(w, http.StatusOK, ls, nil)
}

// SessionDuration reports the duration the element discovered. A failed
// catalog correction is reported in the body but is not fatal.
func (h *Handlers) SessionDuration(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req DurationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := ls.session.OnDurationChange(r.Context(), req.Seconds)
	writeSession(w, http.StatusOK, ls, err)
}

// SessionToggle plays or pauses. Past the preview limit without a
// subscription it answers 402.
func (h *Handlers) SessionToggle(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	err := ls.session.TogglePlayPause(r.Context())
	writeSession(w, sessionError(err), ls, err)
}

// SessionLike toggles the like on the session's video.
func (h *Handlers) SessionLike(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	_, err := ls.session.ToggleLike(r.Context())
	writeSession(w, sessionError(err), ls, err)
}

// SessionFavorite toggles the session's video in the favorites.
func (h *Handlers) SessionFavorite(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	_, err := ls.session.ToggleFavorite(r.Context())
	writeSession(w, sessionError(err), ls, err)
}

// SessionSubscribe subscribes from the preview banner and resumes
// playback. Other open sessions are released from the preview limit too.
func (h *Handlers) SessionSubscribe(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	err := ls.session.Subscribe(r.Context())
	if err == nil || errors.Is(err, playback.ErrPlayRejected) {
		h.sessions.setSubscribed(true)
	}
	writeSession(w, sessionError(err), ls, err)
}

// SessionTransfer moves playback to a fresh element, as when the page
// swaps between layouts. The response carries the seek (and play) the new
// element needs.
func (h *Handlers) SessionTransfer(w http.ResponseWriter, r *http.Request) {
	ls, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	el := &remoteElement{}
	err := ls.session.TransferElement(r.Context(), el)
	if err == nil || errors.Is(err, playback.ErrPlayRejected) {
		ls.setElement(el)
	}
	writeSession(w, sessionError(err), ls, err)
}

// DeleteSession disposes the session, recording the watch time.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ls, ok := h.sessions.remove(id)
	if !ok {
		writeJSONError(w, "Session not found", http.StatusNotFound)
		return
	}

	ls.session.Dispose(context.WithoutCancel(r.Context()))
	log.Debug("Closed playback session %s", id)
	writeSession(w, http.StatusOK, ls, nil)
}

func (h *Handlers) liveSession(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	ls, ok := h.sessions.get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "Session not found", http.StatusNotFound)
	}
	return ls, ok
}
