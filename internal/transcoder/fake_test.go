package transcoder

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

type fakeSource struct{ url string }

func (s *fakeSource) URL() string { return s.url }

type fakeCapture struct {
	mu sync.Mutex

	supported map[string]bool
	info      SourceInfo

	openErr     error
	probeErr    error
	playErr     error
	surfaceErr  error
	recorderErr error
	drawErr     error
	playFailErr error
	stopErr     error
	crashErr    error
	crashAfter  int

	frames     int
	frameDelay time.Duration
	endless    bool
	silent     bool

	opened    int
	revoked   int
	recorders int
	lastOpts  RecorderOptions
	playbacks []*fakePlayback
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{
		supported: map[string]bool{MimeVP9: true, MimeVP8: true},
		info:      SourceInfo{Width: 1920, Height: 1080, Duration: time.Second},
		frames:    10,
	}
}

func (c *fakeCapture) Open(_ context.Context, file *File) (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opened++
	return &fakeSource{url: "fake://" + file.Name}, nil
}

func (c *fakeCapture) Probe(_ context.Context, _ Source) (SourceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, c.probeErr
}

func (c *fakeCapture) SupportsType(mimeType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supported[mimeType]
}

func (c *fakeCapture) Play(_ context.Context, _ Source) (Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return nil, c.playErr
	}
	p := newFakePlayback(c.frames, c.info.Duration, c.frameDelay, c.endless, c.playFailErr)
	c.playbacks = append(c.playbacks, p)
	return p, nil
}

func (c *fakeCapture) CreateSurface(width, height int) (Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surfaceErr != nil {
		return nil, c.surfaceErr
	}
	return &fakeSurface{bounds: image.Rect(0, 0, width, height), drawErr: c.drawErr}, nil
}

func (c *fakeCapture) CreateRecorder(surface Surface, opts RecorderOptions) (Recorder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recorderErr != nil {
		return nil, c.recorderErr
	}
	c.recorders++
	c.lastOpts = opts
	rec := &fakeRecorder{
		data:       make(chan []byte, 1024),
		errs:       make(chan error, 1),
		silent:     c.silent,
		stopErr:    c.stopErr,
		crashErr:   c.crashErr,
		crashAfter: c.crashAfter,
	}
	surface.(*fakeSurface).rec = rec
	return rec, nil
}

func (c *fakeCapture) Revoke(_ Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked++
}

func (c *fakeCapture) counts() (opened, revoked, recorders int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.revoked, c.recorders
}

type fakePlayback struct {
	frames   chan Frame
	err      error
	stop     chan struct{}
	stopOnce sync.Once
}

func newFakePlayback(n int, total, delay time.Duration, endless bool, failErr error) *fakePlayback {
	p := &fakePlayback{frames: make(chan Frame), stop: make(chan struct{})}
	go func() {
		defer close(p.frames)
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		for i := 1; endless || i <= n; i++ {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-p.stop:
					return
				}
			}
			pos := total * time.Duration(i) / time.Duration(max(n, 1))
			select {
			case p.frames <- Frame{Image: img, Position: pos}:
			case <-p.stop:
				return
			}
		}
		p.err = failErr
	}()
	return p
}

func (p *fakePlayback) Frames() <-chan Frame { return p.frames }
func (p *fakePlayback) Err() error           { return p.err }
func (p *fakePlayback) Stop()                { p.stopOnce.Do(func() { close(p.stop) }) }

func (p *fakePlayback) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

type fakeSurface struct {
	bounds  image.Rectangle
	drawErr error
	rec     *fakeRecorder
}

func (s *fakeSurface) Bounds() image.Rectangle { return s.bounds }
func (s *fakeSurface) Release()                {}

func (s *fakeSurface) Draw(_ image.Image) error {
	if s.drawErr != nil {
		return s.drawErr
	}
	if s.rec != nil {
		s.rec.frame()
	}
	return nil
}

// fakeRecorder queues errors before closing data, as the ffmpeg recorder does.
type fakeRecorder struct {
	mu         sync.Mutex
	data       chan []byte
	errs       chan error
	silent     bool
	stopErr    error
	crashErr   error
	crashAfter int
	started    bool
	stopped    bool
	frameNum   int
}

func (r *fakeRecorder) Start(_ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("already started")
	}
	r.started = true
	return nil
}

// frame emits a chunk for every other frame and an empty chunk otherwise.
func (r *fakeRecorder) frame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.silent || r.stopped {
		return
	}
	r.frameNum++
	if r.crashErr != nil && r.frameNum > r.crashAfter {
		r.stopped = true
		r.errs <- r.crashErr
		close(r.data)
		return
	}
	if r.frameNum%2 == 0 {
		r.data <- []byte{0x1a, 0x45, 0xdf, 0xa3}
	} else {
		r.data <- nil
	}
}

func (r *fakeRecorder) Data() <-chan []byte  { return r.data }
func (r *fakeRecorder) Errors() <-chan error { return r.errs }

func (r *fakeRecorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.data)
	}
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if !r.silent {
		r.data <- []byte{0xff}
	}
	if r.stopErr != nil {
		r.errs <- r.stopErr
	}
	close(r.data)
}
