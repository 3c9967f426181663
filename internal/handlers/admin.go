package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"bitzomax/internal/database"
	"bitzomax/internal/mediatypes"
	"bitzomax/internal/streaming"
	"bitzomax/internal/transcoder"
	"bitzomax/internal/uploader"

	"github.com/gorilla/mux"
)

const (
	// policyMetadataKey stores the operator's transcode policy as JSON.
	policyMetadataKey = "transcode_policy"

	multipartMemory   = 32 << 20
	multipartOverhead = 16 << 20

	eventPollInterval = 500 * time.Millisecond
	keepAliveEvery    = 30
)

// UploadMetadata is the videoData form field of an upload.
type UploadMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsPremium   bool     `json:"isPremium"`
	Tags        []string `json:"tags"`
}

// TranscodeResponse describes a job. Live jobs carry their current status;
// finished jobs that have left memory carry the persisted record.
type TranscodeResponse struct {
	Live   bool                      `json:"live"`
	Status *transcoder.Status        `json:"status,omitempty"`
	Record *database.TranscodeRecord `json:"record,omitempty"`
}

// EstimateRequest asks for the expected WebM size of a file.
type EstimateRequest struct {
	Size int64 `json:"size"`
}

// EstimateResponse is the expected WebM size.
type EstimateResponse struct {
	Size          int64 `json:"size"`
	EstimatedSize int64 `json:"estimatedSize"`
}

// CapabilitiesResponse describes what the transcoder can do.
type CapabilitiesResponse struct {
	Supported      bool              `json:"supported"`
	Codec          string            `json:"codec,omitempty"`
	Workers        int               `json:"workers"`
	Timeout        string            `json:"timeout"`
	MaxUploadBytes int64             `json:"maxUploadBytes"`
	VideoFormats   []string          `json:"videoFormats"`
	Policy         transcoder.Policy `json:"policy"`
}

// UploadVideo accepts a multipart upload (videoFile, optional
// thumbnailFile, videoData JSON), creates the catalog entry and starts its
// conversion.
func (h *Handlers) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeJSONError(w, "Uploads are disabled", http.StatusServiceUnavailable)
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var meta UploadMetadata
	if raw := r.FormValue("videoData"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			writeJSONError(w, "Invalid videoData", http.StatusBadRequest)
			return
		}
	}

	file, header, err := r.FormFile("videoFile")
	if err != nil {
		writeJSONError(w, "videoFile is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	req := uploader.Request{
		Title:       meta.Title,
		Description: meta.Description,
		IsPremium:   meta.IsPremium,
		Tags:        meta.Tags,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Video:       file,
	}

	thumb, _, err := r.FormFile("thumbnailFile")
	switch {
	case err == nil:
		defer thumb.Close()
		req.Thumbnail = thumb
	case !errors.Is(err, http.ErrMissingFile):
		writeJSONError(w, "Invalid thumbnailFile", http.StatusBadRequest)
		return
	}

	result, err := h.uploader.Upload(r.Context(), req)
	switch {
	case err == nil:
		writeJSONCode(w, http.StatusCreated, result)
	case errors.Is(err, uploader.ErrInvalidUpload), errors.Is(err, uploader.ErrUnsupportedFormat):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, uploader.ErrTooLarge):
		writeJSONError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, uploader.ErrBusy):
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Error("Upload of %s failed: %v", header.Filename, err)
		writeJSONError(w, "Upload failed", http.StatusInternalServerError)
	}
}

// GetTranscode returns the status of a transcode job.
func (h *Handlers) GetTranscode(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.transcodeStatus(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

func (h *Handlers) transcodeStatus(w http.ResponseWriter, r *http.Request) (TranscodeResponse, bool) {
	id := mux.Vars(r)["id"]
	if job, ok := h.transcoder.Job(id); ok {
		status := job.Snapshot()
		return TranscodeResponse{Live: true, Status: &status}, true
	}

	rec, err := h.db.GetTranscode(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Transcode job not found", http.StatusNotFound)
		return TranscodeResponse{}, false
	}
	if err != nil {
		log.Error("Failed to load transcode %s: %v", id, err)
		writeJSONError(w, "Failed to load transcode", http.StatusInternalServerError)
		return TranscodeResponse{}, false
	}
	return TranscodeResponse{Record: &rec}, true
}

// TranscodeEvents streams a job's progress as Server-Sent Events. A
// "status" event is sent whenever the state or progress changes and a
// single "done" event ends the stream.
func (h *Handlers) TranscodeEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, live := h.transcoder.Job(id)

	var final TranscodeResponse
	if !live {
		resp, ok := h.transcodeStatus(w, r)
		if !ok {
			return
		}
		final = resp
	}

	es, err := streaming.NewEventStream(w)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !live {
		_ = es.Send("done", final)
		return
	}

	if err := streamJob(r.Context(), es, job, eventPollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("Transcode event stream for %s ended: %v", id, err)
	}
}

func streamJob(ctx context.Context, es *streaming.EventStream, job *transcoder.Job, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := job.Snapshot()
	if err := es.Send("status", last); err != nil {
		return err
	}

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-job.Done():
			status := job.Snapshot()
			return es.Send("done", TranscodeResponse{Live: true, Status: &status})
		case <-ticker.C:
			status := job.Snapshot()
			if status.State == last.State && status.Progress == last.Progress {
				if idle++; idle >= keepAliveEvery {
					idle = 0
					if err := es.KeepAlive(); err != nil {
						return err
					}
				}
				continue
			}
			idle = 0
			last = status
			if err := es.Send("status", status); err != nil {
				return err
			}
		}
	}
}

// EstimateSize returns the expected WebM size of a file of the given size.
func (h *Handlers) EstimateSize(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Size < 0 {
		writeJSONError(w, "size must not be negative", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, EstimateResponse{Size: req.Size, EstimatedSize: h.transcoder.EstimateSize(req.Size)})
}

// Capabilities reports encoder availability and the active policy.
func (h *Handlers) Capabilities(w http.ResponseWriter, _ *http.Request) {
	cfg := h.transcoder.Config()

	formats := make([]string, 0, len(mediatypes.VideoExtensions))
	for ext := range mediatypes.VideoExtensions {
		formats = append(formats, ext)
	}
	sort.Strings(formats)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CapabilitiesResponse{
		Supported:      h.transcoder.Supported(),
		Codec:          h.transcoder.Codec(),
		Workers:        cfg.Workers,
		Timeout:        cfg.Timeout.String(),
		MaxUploadBytes: h.maxUploadBytes,
		VideoFormats:   formats,
		Policy:         h.transcoder.Policy(),
	})
}

// GetPolicy returns the bitrate and size tables in effect.
func (h *Handlers) GetPolicy(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.transcoder.Policy())
}

// UpdatePolicy replaces the bitrate and size tables. The new policy is
// persisted and applies to jobs that have not yet probed their input.
func (h *Handlers) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var p transcoder.Policy
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		writeJSONError(w, "Failed to encode policy", http.StatusInternalServerError)
		return
	}
	if err := h.db.SetMetadata(r.Context(), policyMetadataKey, string(data)); err != nil {
		log.Error("Failed to persist transcode policy: %v", err)
		writeJSONError(w, "Failed to save policy", http.StatusInternalServerError)
		return
	}
	if err := h.transcoder.SetPolicy(p); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Info("Transcode policy updated: default bitrate %d, %d bitrate tiers, %d size tiers",
		p.Bitrates.Default, len(p.Bitrates.Tiers), len(p.Sizes.Tiers))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, p)
}

// LoadPolicy applies the persisted transcode policy, if any.
func (h *Handlers) LoadPolicy(ctx context.Context) error {
	raw, err := h.db.GetMetadata(ctx, policyMetadataKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transcode policy: %w", err)
	}

	var p transcoder.Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("decode transcode policy: %w", err)
	}
	if err := h.transcoder.SetPolicy(p); err != nil {
		return fmt.Errorf("apply transcode policy: %w", err)
	}
	log.Info("Loaded persisted transcode policy")
	return nil
}
