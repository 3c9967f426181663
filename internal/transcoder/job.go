package transcoder

import (
	"context"
	"sync"
	"time"
)

// State is a job's position in its lifecycle.
type State string

// Job states.
const (
	StateIdle     State = "idle"
	StateProbing  State = "probing"
	StateEncoding State = "encoding"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateTimedOut State = "timed_out"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateTimedOut
}

// Event is a progress update or the job's single terminal outcome.
type Event struct {
	Progress int
	Output   *File
	Err      error
}

// Terminal reports whether this is the last event of the stream.
func (e Event) Terminal() bool {
	return e.Output != nil || e.Err != nil
}

// Status is a point-in-time copy of a job.
type Status struct {
	ID          string    `json:"id"`
	State       State     `json:"state"`
	Progress    int       `json:"progress"`
	Reason      Reason    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	InputName   string    `json:"inputName"`
	InputSize   int64     `json:"inputSize"`
	OutputName  string    `json:"outputName,omitempty"`
	OutputSize  int64     `json:"outputSize,omitempty"`
	Bitrate     int       `json:"bitrate,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

// eventBuffer is the number of progress events that may queue before
// further progress updates are coalesced. One extra slot is reserved so the
// terminal event never blocks.
const eventBuffer = 32

// Job is a single transcode of one input file.
type Job struct {
	ID    string
	Input *File

	mu        sync.Mutex
	state     State
	progress  int
	published bool
	output    *File
	err       error
	bitrate   int
	mimeType  string
	submitted time.Time
	finished  time.Time

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
}

func newJob(id string, input *File) *Job {
	return &Job{
		ID:        id,
		Input:     input,
		state:     StateIdle,
		submitted: time.Now(),
		events:    make(chan Event, eventBuffer+1),
		done:      make(chan struct{}),
	}
}

// Events returns the job's event stream. Progress values are
// non-decreasing; the stream ends with exactly one terminal event and is
// then closed. Slow readers may miss intermediate progress values.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (*File, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.output, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the job. A job that already finished is unaffected.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot returns a copy of the job's current status.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Status{
		ID:          j.ID,
		State:       j.state,
		Progress:    j.progress,
		Bitrate:     j.bitrate,
		MimeType:    j.mimeType,
		SubmittedAt: j.submitted,
		FinishedAt:  j.finished,
	}
	if j.Input != nil {
		s.InputName = j.Input.Name
		s.InputSize = j.Input.Size
	}
	if j.output != nil {
		s.OutputName = j.output.Name
		s.OutputSize = j.output.Size
	}
	if j.err != nil {
		s.Reason = ReasonOf(j.err)
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.Terminal() {
		j.state = s
	}
}

func (j *Job) setEncoding(bitrate int, mimeType string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bitrate = bitrate
	j.mimeType = mimeType
	if !j.state.Terminal() {
		j.state = StateEncoding
	}
}

// advance publishes pct if it is larger than the last published value.
// Only the job's own goroutine calls it.
func (j *Job) advance(pct int) {
	j.mu.Lock()
	if j.state.Terminal() || (j.published && pct <= j.progress) {
		j.mu.Unlock()
		return
	}
	j.progress = pct
	j.published = true
	j.mu.Unlock()

	if len(j.events) < eventBuffer {
		j.events <- Event{Progress: pct}
	}
}

// finish records the terminal outcome exactly once.
func (j *Job) finish(output *File, err error) bool {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return false
	}

	ev := Event{Progress: j.progress}
	switch {
	case err == nil:
		j.state = StateComplete
		j.progress = 100
		j.output = output
		ev = Event{Progress: 100, Output: output}
	case ReasonOf(err) == ReasonTimeout:
		j.state = StateTimedOut
		j.err = err
		ev.Err = err
	default:
		j.state = StateFailed
		j.err = err
		ev.Err = err
	}
	j.finished = time.Now()
	j.mu.Unlock()

	j.events <- ev
	close(j.events)
	close(j.done)
	return true
}
