package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"bitzomax/internal/logging"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// ThumbnailWidth and ThumbnailHeight bound the catalog card image.
	ThumbnailWidth  = 320
	ThumbnailHeight = 640

	thumbnailQuality = 85
	frameTimeout     = 30 * time.Second
)

// Thumbnailer writes JPEG thumbnails into a directory.
type Thumbnailer struct {
	dir        string
	ffmpegPath string
}

// NewThumbnailer returns a Thumbnailer storing files in dir. An empty
// ffmpegPath disables frame extraction.
func NewThumbnailer(dir, ffmpegPath string) *Thumbnailer {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Warn("Thumbnailer: failed to create dir %s: %v", dir, err)
	}
	return &Thumbnailer{dir: dir, ffmpegPath: ffmpegPath}
}

// FromImage decodes an uploaded cover image and stores it fitted to the
// thumbnail box. It returns the stored file name.
func (t *Thumbnailer) FromImage(r io.ReadSeeker) (string, error) {
	img, err := DecodeImage(r)
	if err != nil {
		return "", err
	}
	return t.save(img)
}

// FromVideo extracts a frame one second in (or the first frame for shorter
// clips) and stores it as a thumbnail.
func (t *Thumbnailer) FromVideo(ctx context.Context, videoPath string) (string, error) {
	if t.ffmpegPath == "" {
		return "", fmt.Errorf("frame extraction disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	data, err := t.extractFrame(ctx, videoPath, "00:00:01")
	if err != nil {
		logging.Debug("FFmpeg seek attempt failed for %s: %v, retrying at start", videoPath, err)
		data, err = t.extractFrame(ctx, videoPath, "")
		if err != nil {
			return "", err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return t.save(img)
}

func (t *Thumbnailer) extractFrame(ctx context.Context, videoPath, seek string) ([]byte, error) {
	args := []string{"-v", "error"}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	args = append(args, "-i", videoPath, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", videoPath)
	}
	return stdout.Bytes(), nil
}

func (t *Thumbnailer) save(img image.Image) (string, error) {
	thumb := imaging.Fit(img, ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	name := "thumb-" + uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(t.dir, name), buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}

	logging.Debug("Thumbnail stored: %s (%dx%d)", name, thumb.Bounds().Dx(), thumb.Bounds().Dy())
	return name, nil
}
