package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"bitzomax/internal/logging"
)

var log = logging.For("streaming")

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates a single write or the whole stream ran too long.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates the client disconnected before the stream completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates the stream was closed or timed out while idle.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout is the maximum time to wait for a single write operation
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between successful writes
	IdleTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize is the size of chunks to write (0 = write as received)
	ChunkSize int
	// OnProgress is called roughly once per MiB written
	OnProgress func(bytesWritten int64, duration time.Duration)
}

// DefaultTimeoutWriterConfig returns sensible defaults
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with timeout protection.
// It is itself an http.ResponseWriter.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelCauseFunc
	config  TimeoutWriterConfig

	mu           sync.Mutex
	startTime    time.Time
	lastWrite    time.Time
	bytesWritten int64
	closed       bool
}

// NewTimeoutWriter creates a new timeout-protected writer. Close must be
// called to stop the idle checker.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancelCause(ctx)
	now := time.Now()

	tw := &TimeoutWriter{
		w:         w,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		startTime: now,
		lastWrite: now,
	}
	if flusher, ok := w.(http.Flusher); ok {
		tw.flusher = flusher
	}

	go tw.idleChecker()
	return tw
}

// Header returns the underlying writer's header map.
func (tw *TimeoutWriter) Header() http.Header {
	return tw.w.Header()
}

// WriteHeader forwards the status code.
func (tw *TimeoutWriter) WriteHeader(code int) {
	tw.w.WriteHeader(code)
}

// Flush flushes the underlying writer when it supports it.
func (tw *TimeoutWriter) Flush() {
	if tw.flusher != nil {
		tw.flusher.Flush()
	}
}

// Write implements io.Writer with timeout protection
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	if err := tw.ctx.Err(); err != nil {
		return 0, tw.contextError()
	}

	if tw.config.MaxDuration > 0 && time.Since(tw.startTime) > tw.config.MaxDuration {
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout
	}

	if tw.config.ChunkSize > 0 && len(p) > tw.config.ChunkSize {
		return tw.writeChunked(p)
	}
	return tw.writeWithTimeout(p)
}

func (tw *TimeoutWriter) writeChunked(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if tw.ctx.Err() != nil {
			return total, tw.contextError()
		}

		size := min(tw.config.ChunkSize, len(p))
		n, err := tw.writeWithTimeout(p[:size])
		total += n
		if err != nil {
			return total, err
		}
		p = p[size:]
		tw.Flush()
	}
	return total, nil
}

func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := tw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	timer := time.NewTimer(tw.config.WriteTimeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err == nil {
			tw.mu.Lock()
			tw.lastWrite = time.Now()
			before := tw.bytesWritten
			tw.bytesWritten += int64(result.n)
			written := tw.bytesWritten
			tw.mu.Unlock()

			if tw.config.OnProgress != nil && before>>20 != written>>20 {
				tw.config.OnProgress(written, time.Since(tw.startTime))
			}
		}
		return result.n, result.err

	case <-timer.C:
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout

	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

func (tw *TimeoutWriter) idleChecker() {
	if tw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			tw.mu.Unlock()

			if closed {
				return
			}
			if idle > tw.config.IdleTimeout {
				log.Warn("Stream idle timeout exceeded: %v", idle)
				tw.cancel(ErrStreamCanceled)
				return
			}

		case <-tw.ctx.Done():
			return
		}
	}
}

// contextError maps the writer context's cause to a sentinel error.
func (tw *TimeoutWriter) contextError() error {
	cause := context.Cause(tw.ctx)
	switch {
	case errors.Is(cause, ErrWriteTimeout):
		return ErrWriteTimeout
	case errors.Is(cause, ErrStreamCanceled):
		return ErrStreamCanceled
	default:
		return ErrClientGone
	}
}

// Close stops the writer. Further writes fail with ErrStreamCanceled.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true
	tw.cancel(ErrStreamCanceled)
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}

// StreamWithTimeout copies r to w with timeout protection.
func StreamWithTimeout(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) error {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() { _ = tw.Close() }()

	w.Header().Set("X-Content-Type-Options", "nosniff")

	_, err := io.Copy(tw, r)

	bytesWritten, duration := tw.Stats()
	log.Debug("Stream completed: %d bytes in %v", bytesWritten, duration)
	return err
}
