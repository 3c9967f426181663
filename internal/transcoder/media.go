package transcoder

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"time"
)

// MIME types understood by the pipeline.
const (
	MimeWebM = "video/webm"
	MimeVP9  = "video/webm;codecs=vp9"
	MimeVP8  = "video/webm;codecs=vp8"
)

// File is an opaque media file handle. Exactly one of Path or Data is
// normally set: uploads spooled to disk carry a Path, encoder output carries
// Data.
type File struct {
	Name string
	Type string
	Size int64
	Path string
	Data []byte
}

// IsWebM reports whether the declared type is exactly video/webm.
func (f *File) IsWebM() bool {
	return f.Type == MimeWebM
}

// WebMName returns the file name with its extension replaced by .webm.
func WebMName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".webm"
}

// SourceInfo is the metadata reported by a probe.
type SourceInfo struct {
	Width    int
	Height   int
	Duration time.Duration
}

// Frame is one decoded picture and its presentation position.
type Frame struct {
	Image    image.Image
	Position time.Duration
}

// Source is a materialized input file. Its URL stays valid until the
// capture facade revokes it.
type Source interface {
	URL() string
}

// Playback delivers decoded frames at real-time speed.
type Playback interface {
	// Frames is closed when playback ends or fails.
	Frames() <-chan Frame
	// Err reports the playback failure, if any, once Frames is closed.
	Err() error
	Stop()
}

// Surface is an off-screen raster the recorder captures from.
type Surface interface {
	Bounds() image.Rectangle
	Draw(img image.Image) error
	Release()
}

// RecorderOptions configures a streaming recorder.
type RecorderOptions struct {
	MimeType           string
	VideoBitsPerSecond int
	FrameRate          int
}

// Recorder captures a surface into encoded chunks.
type Recorder interface {
	// Start begins capture, emitting a chunk every timeslice.
	Start(timeslice time.Duration) error
	// Data yields encoded chunks and is closed after Stop has flushed.
	Data() <-chan []byte
	// Errors yields failures that happen while recording. May be nil. An
	// error is queued before Data is closed.
	Errors() <-chan error
	// Stop ends capture and flushes pending data. Safe to call more than once.
	Stop()
	// Close aborts capture and releases resources, discarding anything not
	// yet delivered. Safe to call after Stop.
	Close()
}

// MediaCapture is the facade over the media primitives the pipeline needs.
type MediaCapture interface {
	Open(ctx context.Context, file *File) (Source, error)
	Probe(ctx context.Context, src Source) (SourceInfo, error)
	SupportsType(mimeType string) bool
	Play(ctx context.Context, src Source) (Playback, error)
	CreateSurface(width, height int) (Surface, error)
	CreateRecorder(surface Surface, opts RecorderOptions) (Recorder, error)
	Revoke(src Source)
}
