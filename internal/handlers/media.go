package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"bitzomax/internal/filesystem"
	"bitzomax/internal/mediatypes"
	"bitzomax/internal/streaming"

	"github.com/gorilla/mux"
)

// ServeMedia serves a stored video or thumbnail from the upload directory.
// Range requests are supported. Only plain file names are accepted.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mediatypes.GetFileType(ext) == mediatypes.FileTypeOther {
		http.NotFound(w, r)
		return
	}

	f, err := filesystem.OpenWithRetry(filepath.Join(h.uploadDir, name), filesystem.DefaultRetryConfig())
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error("Failed to open media %s: %v", name, err)
		http.Error(w, "Failed to open media", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mediatypes.GetMimeType(ext))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	tw := streaming.NewTimeoutWriter(r.Context(), w, streaming.DefaultTimeoutWriterConfig())
	defer func() { _ = tw.Close() }()
	http.ServeContent(tw, r, name, info.ModTime(), f)

	if written, took := tw.Stats(); written > 0 {
		log.Debug("Served %s: %d bytes in %v", name, written, took)
	}
}
