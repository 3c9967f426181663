package handlers

import (
	"errors"
	"net/http"

	"bitzomax/internal/database"
	"bitzomax/internal/mediatypes"

	"github.com/gorilla/mux"
)

const defaultRelatedLimit = 3

// ListVideos returns a page of the catalog. Query parameters: premium,
// q, tag, sort (uploadDate|views|likes|title), order (asc|desc), limit,
// offset.
func (h *Handlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	premium, err := queryBool(r, "premium")
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	opts := database.ListOptions{
		Query:     q.Get("q"),
		Tag:       q.Get("tag"),
		Premium:   premium,
		SortBy:    mediatypes.SortField(q.Get("sort")),
		SortOrder: mediatypes.SortOrder(q.Get("order")),
		Limit:     queryInt(r, "limit", 20),
		Offset:    queryInt(r, "offset", 0),
	}

	page, err := h.db.ListVideos(r.Context(), opts)
	if err != nil {
		log.Error("Failed to list videos: %v", err)
		writeJSONError(w, "Failed to list videos", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, page)
}

// GetVideo returns one catalog entry.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, video)
}

// RelatedVideos returns videos sharing tags with the requested one.
func (h *Handlers) RelatedVideos(w http.ResponseWriter, r *http.Request) {
	video, ok := h.lookupVideo(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultRelatedLimit)
	if limit <= 0 || limit > 50 {
		limit = defaultRelatedLimit
	}

	related, err := h.db.RelatedVideos(r.Context(), video.ID, limit)
	if err != nil {
		log.Error("Failed to load related videos for %s: %v", video.ID, err)
		writeJSONError(w, "Failed to load related videos", http.StatusInternalServerError)
		return
	}
	if related == nil {
		related = []mediatypes.Video{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, related)
}

// lookupVideo loads the video named by the {id} route variable, writing a
// 404 or 500 response when it cannot.
func (h *Handlers) lookupVideo(w http.ResponseWriter, r *http.Request) (mediatypes.Video, bool) {
	id := mux.Vars(r)["id"]
	video, err := h.db.GetVideoByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return video, false
	}
	if err != nil {
		log.Error("Failed to load video %s: %v", id, err)
		writeJSONError(w, "Failed to load video", http.StatusInternalServerError)
		return video, false
	}
	return video, true
}
