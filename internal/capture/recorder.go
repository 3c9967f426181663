package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitzomax/internal/transcoder"
)

type recorder struct {
	f       *FFmpeg
	surface *Surface
	opts    transcoder.RecorderOptions
	encoder string

	ctx    context.Context
	cancel context.CancelFunc

	data chan []byte
	errs chan error

	mu      sync.Mutex
	pending bytes.Buffer

	started   bool
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// CreateRecorder prepares a WebM encoder that samples surface.
func (f *FFmpeg) CreateRecorder(surface transcoder.Surface, opts transcoder.RecorderOptions) (transcoder.Recorder, error) {
	s, ok := surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("capture: foreign surface %T", surface)
	}
	encoder, ok := encoderFor[opts.MimeType]
	if !ok {
		return nil, fmt.Errorf("capture: unsupported recorder type %q", opts.MimeType)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = f.cfg.FrameRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &recorder{
		f:       f,
		surface: s,
		opts:    opts,
		encoder: encoder,
		ctx:     ctx,
		cancel:  cancel,
		data:    make(chan []byte, 16),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
	}, nil
}

func (r *recorder) args() []string {
	size := r.surface.Bounds().Size()
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", size.X, size.Y),
		"-r", strconv.Itoa(r.opts.FrameRate),
		"-i", "pipe:0",
		"-c:v", r.encoder,
		"-b:v", strconv.Itoa(r.opts.VideoBitsPerSecond),
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
		"-f", "webm",
		"pipe:1",
	}
}

// Start launches the encoder and begins sampling the surface.
func (r *recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	cmd := exec.CommandContext(r.ctx, r.f.cfg.FFmpegPath, r.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	r.f.track(cmd, "encode "+r.encoder)

	readDone := make(chan struct{})
	go r.feed(stdin)
	go r.read(stdout, readDone)
	go r.emit(timeslice, readDone, func() error {
		err := cmd.Wait()
		r.f.untrack(cmd)
		if err != nil && r.ctx.Err() == nil {
			return fmt.Errorf("ffmpeg encode: %w - %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	})
	return nil
}

// feed writes one surface sample per frame interval until stopped.
func (r *recorder) feed(stdin io.WriteCloser) {
	defer stdin.Close()

	size := r.surface.Bounds().Size()
	frame := make([]byte, size.X*size.Y*4)
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.surface.CopyPixels(frame)
			if _, err := stdin.Write(frame); err != nil {
				if r.ctx.Err() == nil {
					r.fail(fmt.Errorf("write frame: %w", err))
				}
				return
			}
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *recorder) read(stdout io.Reader, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 64*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pending.Write(buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// emit delivers pending output every timeslice and once more at the end.
func (r *recorder) emit(timeslice time.Duration, readDone <-chan struct{}, wait func() error) {
	defer close(r.data)

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.flush() {
				return
			}
		case <-readDone:
			if err := wait(); err != nil {
				r.fail(err)
				return
			}
			r.flush()
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *recorder) flush() bool {
	r.mu.Lock()
	if r.pending.Len() == 0 {
		r.mu.Unlock()
		return true
	}
	chunk := bytes.Clone(r.pending.Bytes())
	r.pending.Reset()
	r.mu.Unlock()

	select {
	case r.data <- chunk:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *recorder) fail(err error) {
	select {
	case r.errs <- err:
	default:
	}
}

func (r *recorder) Data() <-chan []byte  { return r.data }
func (r *recorder) Errors() <-chan error { return r.errs }

// Stop closes the encoder's input so it can finish the stream.
func (r *recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Close kills the encoder and abandons undelivered output.
func (r *recorder) Close() {
	r.closeOnce.Do(func() {
		r.Stop()
		r.cancel()
	})
}
