package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bitzomax/internal/database"
	"bitzomax/internal/filesystem"
	"bitzomax/internal/logging"
	"bitzomax/internal/media"
	"bitzomax/internal/mediatypes"
	"bitzomax/internal/metrics"
	"bitzomax/internal/transcoder"

	"github.com/google/uuid"
)

var log = logging.For("uploader")

// MediaPrefix is the URL prefix stored files are served under.
const MediaPrefix = "/media/"

// ErrUnsupportedFormat is returned for files whose extension is not a
// known video format.
var ErrUnsupportedFormat = errors.New("unsupported video format")

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("upload too large")

// ErrInvalidUpload is returned for requests missing a title or video data.
var ErrInvalidUpload = errors.New("invalid upload")

// ErrBusy is returned while the server is short of memory.
var ErrBusy = errors.New("server is busy, try again later")

// Pressure reports whether new uploads should be refused.
type Pressure interface {
	IsPaused() bool
}

// Request describes one admin upload.
type Request struct {
	Title       string
	Description string
	IsPremium   bool
	Tags        []string

	FileName    string
	ContentType string
	Video       io.Reader

	// Thumbnail is optional. Without it a frame is taken from the video.
	Thumbnail io.ReadSeeker
}

// Result is returned as soon as the catalog row exists.
type Result struct {
	Video         mediatypes.Video `json:"video"`
	JobID         string           `json:"jobId"`
	EstimatedSize int64            `json:"estimatedSize"`
}

// Transcoder is the subset of *transcoder.Transcoder used here.
type Transcoder interface {
	Submit(ctx context.Context, file *transcoder.File) (*transcoder.Job, error)
	EstimateSize(size int64) int64
	Forget(id string)
}

// Uploader stores uploads and tracks their conversion.
type Uploader struct {
	db       *database.Database
	tr       Transcoder
	thumbs   *media.Thumbnailer
	dir      string
	maxBytes int64
	pressure Pressure

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an Uploader writing into dir. maxBytes <= 0 disables the
// size limit.
func New(db *database.Database, tr Transcoder, thumbs *media.Thumbnailer, dir string, maxBytes int64) (*Uploader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		db:       db,
		tr:       tr,
		thumbs:   thumbs,
		dir:      dir,
		maxBytes: maxBytes,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Dir returns the directory uploads are stored in.
func (u *Uploader) Dir() string {
	return u.dir
}

// SetPressure makes Upload refuse new work while p reports pressure.
func (u *Uploader) SetPressure(p Pressure) {
	u.pressure = p
}

// Upload stores req, creates the pending catalog entry and starts the
// transcode. Conversion continues after Upload returns.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	if u.pressure != nil && u.pressure.IsPaused() {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrBusy
	}
	if strings.TrimSpace(req.Title) == "" {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: title is required", ErrInvalidUpload)
	}
	ext := strings.ToLower(filepath.Ext(req.FileName))
	if !mediatypes.VideoExtensions[ext] {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mediatypes.GetMimeType(ext)
	}

	id := uuid.NewString()
	storedName := id + ext
	path := filepath.Join(u.dir, storedName)

	size, err := u.store(path, req.Video)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.UploadBytes.Add(float64(size))

	video := mediatypes.Video{
		ID:               id,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		VideoURL:         MediaPrefix + storedName,
		IsPremium:        req.IsPremium,
		Tags:             req.Tags,
		OriginalFormat:   contentType,
		ConversionStatus: mediatypes.ConversionPending,
		Size:             size,
		IsVisible:        true,
	}

	if req.Thumbnail != nil {
		if name, err := u.thumbs.FromImage(req.Thumbnail); err != nil {
			log.Warn("Ignoring thumbnail for %s: %v", req.FileName, err)
		} else {
			video.ThumbnailURL = MediaPrefix + name
		}
	}

	if err := u.db.CreateVideo(ctx, &video); err != nil {
		u.remove(path)
		return nil, fmt.Errorf("create catalog entry: %w", err)
	}

	input := &transcoder.File{Name: req.FileName, Type: contentType, Size: size, Path: path}
	job, err := u.tr.Submit(u.ctx, input)
	if err != nil {
		u.finish(ctx, video, path, nil, nil, err)
		return nil, fmt.Errorf("submit transcode: %w", err)
	}

	status := job.Snapshot()
	u.saveRecord(ctx, video.ID, status)

	log.Info("Upload %s (%s, %d bytes) stored as %s, job %s", req.FileName, contentType, size, id, job.ID)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		select {
		case <-job.Done():
		case <-u.ctx.Done():
			return
		}
		out, err := job.Wait(context.Background())
		u.finish(context.Background(), video, path, job, out, err)
	}()

	return &Result{Video: video, JobID: job.ID, EstimatedSize: u.tr.EstimateSize(size)}, nil
}

func (u *Uploader) store(path string, r io.Reader) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: no video data", ErrInvalidUpload)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	switch {
	case err != nil:
		u.remove(path)
		return 0, fmt.Errorf("write upload: %w", err)
	case u.maxBytes > 0 && n > u.maxBytes:
		u.remove(path)
		return 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, u.maxBytes)
	case n == 0:
		u.remove(path)
		return 0, fmt.Errorf("%w: empty video file", ErrInvalidUpload)
	}
	return n, nil
}

// finish records the terminal outcome of a job. A nil job means the
// submission itself failed.
func (u *Uploader) finish(ctx context.Context, video mediatypes.Video, path string, job *transcoder.Job, out *transcoder.File, err error) {
	var result database.ConversionResult

	switch {
	case err == nil && out != nil:
		result.Status = mediatypes.ConversionConverted
		if out.Path != path {
			url, size, werr := u.writeOutput(video.ID, out)
			if werr != nil {
				log.Error("Failed to store WebM output for %s: %v", video.ID, werr)
				result.Status = mediatypes.ConversionFailed
				break
			}
			result.VideoURL, result.Size = url, size
			u.remove(path)
			path = filepath.Join(u.dir, strings.TrimPrefix(url, MediaPrefix))
		}
	case errors.Is(err, transcoder.ErrUnsupportedCodec):
		log.Warn("No WebM encoder available, keeping original for %s", video.ID)
		result.Status = mediatypes.ConversionOriginal
	default:
		log.Warn("Conversion failed for %s: %v", video.ID, err)
		result.Status = mediatypes.ConversionFailed
	}
	if serr := u.db.SetConversionResult(ctx, video.ID, result); serr != nil {
		log.Error("Failed to record conversion result for %s: %v", video.ID, serr)
	}
	metrics.UploadsTotal.WithLabelValues(string(result.Status)).Inc()

	if job != nil {
		u.saveRecord(ctx, video.ID, job.Snapshot())
		u.tr.Forget(job.ID)
	}

	if video.ThumbnailURL == "" && result.Status != mediatypes.ConversionFailed {
		u.frameThumbnail(ctx, video.ID, path)
	}
}

func (u *Uploader) writeOutput(id string, out *transcoder.File) (string, int64, error) {
	name := id + ".webm"
	target := filepath.Join(u.dir, name)

	if out.Data != nil {
		if err := os.WriteFile(target, out.Data, 0644); err != nil {
			return "", 0, err
		}
		return MediaPrefix + name, int64(len(out.Data)), nil
	}
	if out.Path == "" {
		return "", 0, errors.New("output has neither data nor path")
	}
	if err := filesystem.RenameWithRetry(out.Path, target, filesystem.DefaultRetryConfig()); err != nil {
		return "", 0, err
	}
	return MediaPrefix + name, out.Size, nil
}

func (u *Uploader) frameThumbnail(ctx context.Context, id, videoPath string) {
	name, err := u.thumbs.FromVideo(ctx, videoPath)
	if err != nil {
		log.Debug("No frame thumbnail for %s: %v", id, err)
		return
	}
	if err := u.db.SetThumbnail(ctx, id, MediaPrefix+name); err != nil {
		log.Warn("Failed to store thumbnail for %s: %v", id, err)
	}
}

func (u *Uploader) saveRecord(ctx context.Context, videoID string, s transcoder.Status) {
	rec := database.TranscodeRecord{
		JobID:      s.ID,
		VideoID:    videoID,
		State:      string(s.State),
		Reason:     string(s.Reason),
		InputSize:  s.InputSize,
		OutputSize: s.OutputSize,
		Bitrate:    s.Bitrate,
		MimeType:   s.MimeType,
		StartedAt:  s.SubmittedAt,
		FinishedAt: s.FinishedAt,
	}
	if err := u.db.SaveTranscode(ctx, rec); err != nil {
		log.Warn("Failed to persist transcode %s: %v", s.ID, err)
	}
}

func (u *Uploader) remove(path string) {
	if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		log.Warn("Failed to remove %s: %v", path, err)
	}
}

// Wait blocks until every background conversion has been recorded or the
// timeout elapses.
func (u *Uploader) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops tracking conversions. Jobs themselves are canceled by the
// transcoder's Cleanup.
func (u *Uploader) Close() {
	u.cancel()
}
