package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"bitzomax/internal/transcoder"
)

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

type playback struct {
	frames   chan transcoder.Frame
	err      error
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// Play decodes src at native speed into RGBA frames.
func (f *FFmpeg) Play(ctx context.Context, src transcoder.Source) (transcoder.Playback, error) {
	s, err := asSource(src)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	info := s.info
	s.mu.Unlock()
	if info == nil {
		probed, err := f.Probe(ctx, src)
		if err != nil {
			return nil, err
		}
		info = &probed
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-re",
		"-i", s.path,
		"-an",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", f.cfg.FrameRate, info.Width, info.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	f.track(cmd, "decode "+s.path)

	p := &playback{
		frames: make(chan transcoder.Frame),
		stop:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(p.frames)
		defer f.untrack(cmd)

		readErr := p.readFrames(stdout, info.Width, info.Height, f.cfg.FrameRate)
		if readErr != nil {
			cancel()
		}
		waitErr := cmd.Wait()

		if p.stopped() {
			return
		}
		switch {
		case readErr != nil:
			p.err = readErr
		case waitErr != nil:
			p.err = fmt.Errorf("ffmpeg decode: %w - %s", waitErr, strings.TrimSpace(stderr.String()))
		}
	}()

	return p, nil
}

// readFrames returns nil on a clean end of stream.
func (p *playback) readFrames(r io.Reader, width, height, fps int) error {
	frameSize := width * height * 4
	for i := 0; ; i++ {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		if _, err := io.ReadFull(r, img.Pix[:frameSize]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if p.stopped() {
				return nil
			}
			return fmt.Errorf("read frame %d: %w", i, err)
		}

		frame := transcoder.Frame{
			Image:    img,
			Position: time.Duration(i) * time.Second / time.Duration(fps),
		}
		select {
		case p.frames <- frame:
		case <-p.stop:
			return nil
		}
	}
}

func (p *playback) Frames() <-chan transcoder.Frame { return p.frames }

func (p *playback) Err() error { return p.err }

func (p *playback) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.cancel()
	})
}

func (p *playback) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}
