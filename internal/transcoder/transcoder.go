package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitzomax/internal/logging"
	"bitzomax/internal/metrics"

	"github.com/google/uuid"
)

var log = logging.For("transcoder")

// Config tunes the pipeline. Zero values fall back to DefaultConfig.
type Config struct {
	Bitrates      BitrateTable
	Sizes         SizeTable
	Timeout       time.Duration
	FastPathDelay time.Duration
	FrameRate     int
	Timeslice     time.Duration
	Workers       int
}

// DefaultConfig returns the production defaults: a ten-minute watchdog,
// 30 fps capture and 100 ms recorder chunks.
func DefaultConfig() Config {
	return Config{
		Bitrates:      DefaultBitrateTable(),
		Sizes:         DefaultSizeTable(),
		Timeout:       10 * time.Minute,
		FastPathDelay: 500 * time.Millisecond,
		FrameRate:     30,
		Timeslice:     100 * time.Millisecond,
		Workers:       1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Bitrates.Tiers) == 0 && c.Bitrates.Default == 0 {
		c.Bitrates = d.Bitrates
	}
	if len(c.Sizes.Tiers) == 0 && c.Sizes.DefaultRatio == 0 {
		c.Sizes = d.Sizes
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.FastPathDelay < 0 {
		c.FastPathDelay = 0
	}
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	if c.Timeslice <= 0 {
		c.Timeslice = d.Timeslice
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Transcoder runs WebM conversion jobs on a bounded pool.
type Transcoder struct {
	capture MediaCapture
	cfg     Config
	slots   chan struct{}

	policyMu sync.RWMutex
	policy   Policy

	mu     sync.Mutex
	jobs   map[string]*Job
	active map[string]*Job
	closed bool
}

// New creates a Transcoder backed by capture.
func New(capture MediaCapture, cfg Config) *Transcoder {
	cfg = cfg.withDefaults()
	return &Transcoder{
		capture: capture,
		cfg:     cfg,
		policy:  Policy{Bitrates: cfg.Bitrates, Sizes: cfg.Sizes},
		slots:   make(chan struct{}, cfg.Workers),
		jobs:    make(map[string]*Job),
		active:  make(map[string]*Job),
	}
}

// Config returns the effective configuration, including the current policy.
func (t *Transcoder) Config() Config {
	cfg := t.cfg
	p := t.Policy()
	cfg.Bitrates, cfg.Sizes = p.Bitrates, p.Sizes
	return cfg
}

// Policy returns the bitrate and size tables in effect.
func (t *Transcoder) Policy() Policy {
	t.policyMu.RLock()
	defer t.policyMu.RUnlock()
	return t.policy
}

// SetPolicy replaces the tables used by jobs that have not yet probed.
func (t *Transcoder) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	t.policyMu.Lock()
	t.policy = p
	t.policyMu.Unlock()
	return nil
}

// Supported reports whether any WebM encoder is available.
func (t *Transcoder) Supported() bool {
	_, ok := t.chooseCodec()
	return ok
}

// Codec returns the MIME type the next encode would use, or "" if none.
func (t *Transcoder) Codec() string {
	mimeType, _ := t.chooseCodec()
	return mimeType
}

// SelectBitrate returns the encode bitrate for a width×height source.
func (t *Transcoder) SelectBitrate(width, height int) int {
	return t.Policy().Bitrates.Select(width, height)
}

// EstimateSize returns the expected encoded size for an input of size bytes.
func (t *Transcoder) EstimateSize(size int64) int64 {
	return t.Policy().Sizes.Estimate(size)
}

func (t *Transcoder) chooseCodec() (string, bool) {
	for _, mimeType := range []string{MimeVP9, MimeVP8} {
		if t.capture.SupportsType(mimeType) {
			return mimeType, true
		}
	}
	return "", false
}

// Submit starts a job for file. The job runs until it finishes, ctx is
// canceled, or Cleanup is called.
func (t *Transcoder) Submit(ctx context.Context, file *File) (*Job, error) {
	if file == nil {
		return nil, errors.New("transcoder: nil file")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("transcoder: shut down")
	}

	job := newJob(uuid.NewString(), file)
	jobCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	job.cancel = cancel

	t.jobs[job.ID] = job
	t.active[job.ID] = job

	go func() {
		defer stop()
		defer cancel()
		t.run(jobCtx, job)

		t.mu.Lock()
		delete(t.active, job.ID)
		t.mu.Unlock()
	}()

	return job, nil
}

// Job returns a previously submitted job.
func (t *Transcoder) Job(id string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	return job, ok
}

// Forget drops a finished job from the registry.
func (t *Transcoder) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok && job.State().Terminal() {
		delete(t.jobs, id)
	}
}

// Cleanup cancels every running job and rejects new submissions.
func (t *Transcoder) Cleanup() {
	t.mu.Lock()
	t.closed = true
	running := make([]*Job, 0, len(t.active))
	for _, job := range t.active {
		running = append(running, job)
	}
	t.mu.Unlock()

	for _, job := range running {
		log.Info("Canceling transcode job %s (%s)", job.ID, job.Input.Name)
		job.Cancel()
	}
}

func (t *Transcoder) run(ctx context.Context, job *Job) {
	start := time.Now()
	metrics.TranscoderBytesTotal.WithLabelValues("in").Add(float64(job.Input.Size))

	output, err := t.process(ctx, job)
	if !job.finish(output, err) {
		return
	}

	state := job.State()
	metrics.TranscoderJobsTotal.WithLabelValues(string(state), string(ReasonOf(err))).Inc()
	metrics.TranscoderJobDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn("Job %s for %s ended %s: %v", job.ID, job.Input.Name, state, err)
		return
	}
	if output != job.Input {
		metrics.TranscoderBytesTotal.WithLabelValues("out").Add(float64(output.Size))
	}
	log.Info("Job %s for %s complete: %d -> %d bytes in %v",
		job.ID, job.Input.Name, job.Input.Size, output.Size, time.Since(start).Round(time.Millisecond))
}

func (t *Transcoder) process(ctx context.Context, job *Job) (*File, error) {
	if job.Input.IsWebM() {
		return t.passThrough(ctx, job)
	}

	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, newError(ReasonCanceled, ctx.Err())
	}
	defer func() { <-t.slots }()

	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()

	job.setState(StateProbing)

	src, err := t.capture.Open(ctx, job.Input)
	if err != nil {
		return nil, newError(ReasonUnreadableMedia, err)
	}
	var revokeOnce sync.Once
	defer revokeOnce.Do(func() { t.capture.Revoke(src) })

	info, err := t.capture.Probe(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ReasonCanceled, ctx.Err())
		}
		return nil, newError(ReasonUnreadableMedia, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, newError(ReasonUnreadableMedia,
			fmt.Errorf("invalid dimensions %dx%d", info.Width, info.Height))
	}

	mimeType, ok := t.chooseCodec()
	if !ok {
		return nil, newError(ReasonUnsupportedCodec, nil)
	}
	bitrate := t.SelectBitrate(info.Width, info.Height)
	metrics.TranscoderSelectedBitrate.Observe(float64(bitrate))

	log.Debug("Job %s: %dx%d %v, encoding %s at %d bps",
		job.ID, info.Width, info.Height, info.Duration, mimeType, bitrate)

	job.setEncoding(bitrate, mimeType)
	job.advance(0)

	data, err := t.encode(ctx, job, src, info, RecorderOptions{
		MimeType:           mimeType,
		VideoBitsPerSecond: bitrate,
		FrameRate:          t.cfg.FrameRate,
	})
	if err != nil {
		return nil, err
	}

	return &File{
		Name: WebMName(job.Input.Name),
		Type: MimeWebM,
		Size: int64(len(data)),
		Data: data,
	}, nil
}

func (t *Transcoder) passThrough(ctx context.Context, job *Job) (*File, error) {
	if t.cfg.FastPathDelay > 0 {
		timer := time.NewTimer(t.cfg.FastPathDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, newError(ReasonCanceled, ctx.Err())
		}
	}
	return job.Input, nil
}

// encode plays src into a surface captured by a recorder and returns the
// concatenated chunks once playback ends and the recorder has flushed.
func (t *Transcoder) encode(ctx context.Context, job *Job, src Source, info SourceInfo, opts RecorderOptions) ([]byte, error) {
	watchdog := time.NewTimer(t.cfg.Timeout)
	defer watchdog.Stop()

	surface, err := t.capture.CreateSurface(info.Width, info.Height)
	if err != nil {
		return nil, newError(ReasonContextUnavailable, err)
	}
	defer surface.Release()

	rec, err := t.capture.CreateRecorder(surface, opts)
	if err != nil {
		return nil, newError(ReasonRecorderFailure, err)
	}
	defer rec.Close()

	if err := rec.Start(t.cfg.Timeslice); err != nil {
		return nil, newError(ReasonRecorderFailure, err)
	}

	pb, err := t.capture.Play(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ReasonCanceled, ctx.Err())
		}
		return nil, newError(ReasonPlaybackFailure, err)
	}
	defer pb.Stop()

	var buf bytes.Buffer
	frames := pb.Frames()
	chunks := rec.Data()
	recErrs := rec.Errors()

	for frames != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				if err := pb.Err(); err != nil {
					return nil, newError(ReasonPlaybackFailure, err)
				}
				continue
			}
			if err := surface.Draw(frame.Image); err != nil {
				return nil, newError(ReasonContextUnavailable, err)
			}
			job.advance(progressAt(frame.Position, info.Duration))
		case chunk, ok := <-chunks:
			if !ok {
				if err := queuedError(recErrs); err != nil {
					return nil, newError(ReasonRecorderFailure, err)
				}
				return nil, newError(ReasonRecorderFailure, errors.New("recorder stopped before playback ended"))
			}
			buf.Write(chunk)
		case err, ok := <-recErrs:
			if !ok {
				recErrs = nil
				continue
			}
			return nil, newError(ReasonRecorderFailure, err)
		case <-watchdog.C:
			return nil, newError(ReasonTimeout, fmt.Errorf("encoding exceeded %v", t.cfg.Timeout))
		case <-ctx.Done():
			return nil, newError(ReasonCanceled, ctx.Err())
		}
	}

	rec.Stop()
	for chunks != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := queuedError(recErrs); err != nil {
					return nil, newError(ReasonRecorderFailure, err)
				}
				chunks = nil
				continue
			}
			buf.Write(chunk)
		case err, ok := <-recErrs:
			if !ok {
				recErrs = nil
				continue
			}
			return nil, newError(ReasonRecorderFailure, err)
		case <-watchdog.C:
			return nil, newError(ReasonTimeout, fmt.Errorf("encoding exceeded %v", t.cfg.Timeout))
		case <-ctx.Done():
			return nil, newError(ReasonCanceled, ctx.Err())
		}
	}

	if buf.Len() == 0 {
		return nil, newError(ReasonRecorderFailure, errors.New("recorder produced no data"))
	}
	return buf.Bytes(), nil
}

// queuedError returns an error the recorder reported before closing its
// data channel, without blocking.
func queuedError(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err, ok := <-errs:
		if ok {
			return err
		}
	default:
	}
	return nil
}

// progressAt maps a playback position to a percentage. It never reports
// 100; only completion does.
func progressAt(pos, total time.Duration) int {
	if total <= 0 || pos <= 0 {
		return 0
	}
	pct := int(pos * 100 / total)
	if pct > 99 {
		pct = 99
	}
	return pct
}
