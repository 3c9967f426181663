package handlers

import (
	"errors"
	"math"
	"net/http"

	"bitzomax/internal/database"
	"bitzomax/internal/mediatypes"
)

const watchHistoryLimit = 50

// MeResponse is the viewer's profile.
type MeResponse struct {
	mediatypes.User
	Favorites    []mediatypes.Video       `json:"favorites"`
	WatchHistory []mediatypes.WatchRecord `json:"watchHistory"`
	Subscription *SubscriptionResponse    `json:"subscription,omitempty"`
}

// LikeResponse reports the like state of a video after a toggle.
type LikeResponse struct {
	VideoID string `json:"videoId"`
	Liked   bool   `json:"liked"`
	Likes   int64  `json:"likes"`
}

// WatchRequest reports how long a video was watched.
type WatchRequest struct {
	WatchDuration float64 `json:"watchDuration"`
}

// GetMe returns the current viewer's liked and favorite videos, watch
// history and subscription.
func (h *Handlers) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.db.GetCurrentUser(ctx)
	if err != nil {
		log.Error("Failed to load current user: %v", err)
		writeJSONError(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	favorites, err := h.db.GetFavorites(ctx)
	if err != nil {
		log.Error("Failed to load favorites: %v", err)
		writeJSONError(w, "Failed to load favorites", http.StatusInternalServerError)
		return
	}
	history, err := h.db.WatchHistory(ctx, watchHistoryLimit)
	if err != nil {
		log.Error("Failed to load watch history: %v", err)
		writeJSONError(w, "Failed to load watch history", http.StatusInternalServerError)
		return
	}

	resp := MeResponse{User: user, Favorites: favorites, WatchHistory: history}
	if resp.Favorites == nil {
		resp.Favorites = []mediatypes.Video{}
	}
	if resp.WatchHistory == nil {
		resp.WatchHistory = []mediatypes.WatchRecord{}
	}
	if sub, err := h.subscriptionStatus(ctx); err == nil {
		resp.Subscription = &sub
	} else {
		log.Warn("Failed to load subscription: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// ToggleLike flips the viewer's like on a video.
func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}

	liked, err := h.db.ToggleLike(r.Context(), video.ID)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("Failed to toggle like on %s: %v", video.ID, err)
		writeJSONError(w, "Failed to update like", http.StatusInternalServerError)
		return
	}

	likes := video.Likes
	if liked {
		likes++
	} else if likes > 0 {
		likes--
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, LikeResponse{VideoID: video.ID, Liked: liked, Likes: likes})
}

// AddFavorite adds a video to the viewer's favorites.
func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}
	if err := h.db.AddFavorite(r.Context(), video.ID); err != nil {
		log.Error("Failed to add favorite %s: %v", video.ID, err)
		writeJSONError(w, "Failed to add favorite", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// RemoveFavorite removes a video from the viewer's favorites.
func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}
	if err := h.db.RemoveFavorite(r.Context(), video.ID); err != nil {
		log.Error("Failed to remove favorite %s: %v", video.ID, err)
		writeJSONError(w, "Failed to remove favorite", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "ok")
}

// RecordWatch appends a watch-history entry for a video. Completion is
// derived from the catalog duration.
func (h *Handlers) RecordWatch(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}

	var req WatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.WatchDuration <= 0 || math.IsNaN(req.WatchDuration) || math.IsInf(req.WatchDuration, 0) {
		writeJSONError(w, "watchDuration must be positive", http.StatusBadRequest)
		return
	}

	completed := mediatypes.IsCompleted(req.WatchDuration, video.Duration)
	if err := h.db.RecordWatch(r.Context(), video.ID, req.WatchDuration, completed); err != nil {
		log.Error("Failed to record watch of %s: %v", video.ID, err)
		writeJSONError(w, "Failed to record watch", http.StatusInternalServerError)
		return
	}

	writeJSONCode(w, http.StatusCreated, mediatypes.WatchRecord{
		VideoID:       video.ID,
		WatchDuration: req.WatchDuration,
		Completed:     completed,
	})
}
