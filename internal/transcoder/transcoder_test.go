package transcoder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FastPathDelay = 10 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func waitJob(t *testing.T, job *Job) (*File, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := job.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatalf("job %s did not finish", job.ID)
	}
	return out, err
}

// collectEvents drains a job's stream and checks ordering invariants.
func collectEvents(t *testing.T, job *Job) []Event {
	t.Helper()
	var events []Event
	last := -1
	terminals := 0
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-job.Events():
			if !ok {
				if terminals != 1 {
					t.Errorf("got %d terminal events, want exactly 1", terminals)
				}
				if len(events) > 0 && !events[len(events)-1].Terminal() {
					t.Error("stream closed without a terminal event last")
				}
				return events
			}
			if ev.Progress < last {
				t.Errorf("progress went backwards: %d after %d", ev.Progress, last)
			}
			last = ev.Progress
			if ev.Terminal() {
				terminals++
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream never closed")
		}
	}
}

func TestSubmitWebMPassesThrough(t *testing.T) {
	capture := newFakeCapture()
	tr := New(capture, testConfig())

	input := &File{Name: "clip.webm", Type: MimeWebM, Size: 1234, Data: []byte("webm")}
	start := time.Now()
	job, err := tr.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	events := collectEvents(t, job)
	out, err := waitJob(t, job)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if out != input {
		t.Error("WebM input should be returned unchanged")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("pass-through returned before the configured delay")
	}
	last := events[len(events)-1]
	if last.Progress != 100 || last.Output != input {
		t.Errorf("terminal event = %+v, want progress 100 with input", last)
	}
	if opened, _, _ := capture.counts(); opened != 0 {
		t.Errorf("pass-through opened %d sources, want 0", opened)
	}
	if job.State() != StateComplete {
		t.Errorf("state = %s, want %s", job.State(), StateComplete)
	}
}

func TestSubmitEncodesToWebM(t *testing.T) {
	capture := newFakeCapture()
	tr := New(capture, testConfig())

	input := &File{Name: "holiday.clip.mp4", Type: "video/mp4", Size: 50_000, Path: "/tmp/holiday.mp4"}
	job, err := tr.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	events := collectEvents(t, job)
	out, err := waitJob(t, job)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if out.Type != MimeWebM {
		t.Errorf("output type = %q, want %q", out.Type, MimeWebM)
	}
	if out.Name != "holiday.clip.webm" {
		t.Errorf("output name = %q, want holiday.clip.webm", out.Name)
	}
	if out.Size <= 0 || out.Size != int64(len(out.Data)) {
		t.Errorf("output size = %d, data len = %d", out.Size, len(out.Data))
	}
	if events[0].Progress != 0 {
		t.Errorf("first progress = %d, want 0", events[0].Progress)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Progress >= 100 {
			t.Errorf("intermediate progress %d should stay below 100", ev.Progress)
		}
	}
	if got := events[len(events)-1].Progress; got != 100 {
		t.Errorf("terminal progress = %d, want 100", got)
	}

	_, revoked, _ := capture.counts()
	if revoked != 1 {
		t.Errorf("source revoked %d times, want 1", revoked)
	}
	if capture.lastOpts.MimeType != MimeVP9 {
		t.Errorf("mime = %q, want %q", capture.lastOpts.MimeType, MimeVP9)
	}
	if capture.lastOpts.VideoBitsPerSecond != 3_500_000 {
		t.Errorf("bitrate = %d, want 3500000", capture.lastOpts.VideoBitsPerSecond)
	}
	if capture.lastOpts.FrameRate != 30 {
		t.Errorf("frame rate = %d, want 30", capture.lastOpts.FrameRate)
	}

	status := job.Snapshot()
	if status.State != StateComplete || status.OutputName != out.Name || status.Progress != 100 {
		t.Errorf("snapshot = %+v", status)
	}
}

func TestSubmitFallsBackToVP8(t *testing.T) {
	capture := newFakeCapture()
	capture.supported = map[string]bool{MimeVP8: true}
	tr := New(capture, testConfig())

	job, _ := tr.Submit(context.Background(), &File{Name: "a.mov", Type: "video/quicktime", Size: 10})
	if _, err := waitJob(t, job); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if capture.lastOpts.MimeType != MimeVP8 {
		t.Errorf("mime = %q, want %q", capture.lastOpts.MimeType, MimeVP8)
	}
	if got := job.Snapshot().MimeType; got != MimeVP8 {
		t.Errorf("snapshot mime = %q, want %q", got, MimeVP8)
	}
}

func TestSubmitFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		setup    func(c *fakeCapture)
		reason   Reason
		sentinel error
		encoding bool
	}{
		{
			name:     "no codec",
			setup:    func(c *fakeCapture) { c.supported = map[string]bool{} },
			reason:   ReasonUnsupportedCodec,
			sentinel: ErrUnsupportedCodec,
		},
		{
			name:     "probe fails",
			setup:    func(c *fakeCapture) { c.probeErr = boom },
			reason:   ReasonUnreadableMedia,
			sentinel: ErrUnreadableMedia,
		},
		{
			name:     "zero dimensions",
			setup:    func(c *fakeCapture) { c.info.Width = 0 },
			reason:   ReasonUnreadableMedia,
			sentinel: ErrUnreadableMedia,
		},
		{
			name:     "surface unavailable",
			setup:    func(c *fakeCapture) { c.surfaceErr = boom },
			reason:   ReasonContextUnavailable,
			sentinel: ErrContextUnavailable,
			encoding: true,
		},
		{
			name:     "draw fails",
			setup:    func(c *fakeCapture) { c.drawErr = boom },
			reason:   ReasonContextUnavailable,
			sentinel: ErrContextUnavailable,
			encoding: true,
		},
		{
			name:     "playback refuses to start",
			setup:    func(c *fakeCapture) { c.playErr = boom },
			reason:   ReasonPlaybackFailure,
			sentinel: ErrPlaybackFailure,
			encoding: true,
		},
		{
			name:     "playback errors mid-stream",
			setup:    func(c *fakeCapture) { c.playFailErr = boom },
			reason:   ReasonPlaybackFailure,
			sentinel: ErrPlaybackFailure,
			encoding: true,
		},
		{
			name:     "recorder cannot be created",
			setup:    func(c *fakeCapture) { c.recorderErr = boom },
			reason:   ReasonRecorderFailure,
			sentinel: ErrRecorderFailure,
			encoding: true,
		},
		{
			name:     "recorder fails while flushing",
			setup:    func(c *fakeCapture) { c.stopErr = boom },
			reason:   ReasonRecorderFailure,
			sentinel: ErrRecorderFailure,
			encoding: true,
		},
		{
			name: "recorder dies mid-stream",
			setup: func(c *fakeCapture) {
				c.crashErr = boom
				c.crashAfter = 3
			},
			reason:   ReasonRecorderFailure,
			sentinel: ErrRecorderFailure,
			encoding: true,
		},
		{
			name:     "recorder produces nothing",
			setup:    func(c *fakeCapture) { c.silent = true },
			reason:   ReasonRecorderFailure,
			sentinel: ErrRecorderFailure,
			encoding: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := newFakeCapture()
			tt.setup(capture)
			tr := New(capture, testConfig())

			job, err := tr.Submit(context.Background(), &File{Name: "in.mp4", Type: "video/mp4", Size: 100})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			events := collectEvents(t, job)
			out, err := waitJob(t, job)

			if out != nil {
				t.Errorf("output = %+v, want nil", out)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
			if got := ReasonOf(err); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
			if job.State() != StateFailed {
				t.Errorf("state = %s, want %s", job.State(), StateFailed)
			}
			if !tt.encoding && len(events) != 1 {
				t.Errorf("got %d events, want only the terminal one", len(events))
			}
			if _, revoked, _ := capture.counts(); revoked != 1 {
				t.Errorf("source revoked %d times, want 1", revoked)
			}
			if tt.reason == ReasonUnsupportedCodec {
				if _, _, recorders := capture.counts(); recorders != 0 {
					t.Errorf("created %d recorders, want 0", recorders)
				}
			}
		})
	}
}

func TestRecorderErrorNeverCompletes(t *testing.T) {
	boom := errors.New("encoder exited: status 1")

	for _, tt := range []struct {
		name  string
		setup func(c *fakeCapture)
	}{
		{"at flush", func(c *fakeCapture) { c.stopErr = boom }},
		{"mid-stream", func(c *fakeCapture) { c.crashErr = boom; c.crashAfter = 2 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				capture := newFakeCapture()
				capture.frames = 4
				tt.setup(capture)
				tr := New(capture, testConfig())

				job, err := tr.Submit(context.Background(), &File{Name: "in.mp4", Type: "video/mp4", Size: 100})
				if err != nil {
					t.Fatalf("Submit() error = %v", err)
				}
				out, err := waitJob(t, job)
				if out != nil || job.State() == StateComplete {
					t.Fatalf("run %d: job completed despite a recorder error", i)
				}
				if !errors.Is(err, boom) {
					t.Fatalf("run %d: error = %v, want the recorder's %v", i, err, boom)
				}
			}
		})
	}
}

func TestSubmitOpenFailureDoesNotRevoke(t *testing.T) {
	capture := newFakeCapture()
	capture.openErr = errors.New("disk gone")
	tr := New(capture, testConfig())

	job, _ := tr.Submit(context.Background(), &File{Name: "in.mp4", Type: "video/mp4"})
	_, err := waitJob(t, job)
	if ReasonOf(err) != ReasonUnreadableMedia {
		t.Errorf("reason = %q, want %q", ReasonOf(err), ReasonUnreadableMedia)
	}
	if _, revoked, _ := capture.counts(); revoked != 0 {
		t.Errorf("revoked %d times, want 0", revoked)
	}
}

func TestSubmitTimesOut(t *testing.T) {
	capture := newFakeCapture()
	capture.endless = true
	capture.frameDelay = 5 * time.Millisecond

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	tr := New(capture, cfg)

	job, _ := tr.Submit(context.Background(), &File{Name: "long.mp4", Type: "video/mp4"})
	_, err := waitJob(t, job)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want %v", err, ErrTimeout)
	}
	if job.State() != StateTimedOut {
		t.Errorf("state = %s, want %s", job.State(), StateTimedOut)
	}
	if _, revoked, _ := capture.counts(); revoked != 1 {
		t.Errorf("source revoked %d times, want 1", revoked)
	}
	capture.mu.Lock()
	pb := capture.playbacks[0]
	capture.mu.Unlock()
	if !pb.stopped() {
		t.Error("playback was not stopped after timeout")
	}
}

func TestSubmitCanceledByContext(t *testing.T) {
	capture := newFakeCapture()
	capture.endless = true
	capture.frameDelay = 5 * time.Millisecond
	tr := New(capture, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	job, _ := tr.Submit(ctx, &File{Name: "long.mp4", Type: "video/mp4"})
	time.Sleep(20 * time.Millisecond)
	cancel()

	_, err := waitJob(t, job)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("error = %v, want %v", err, ErrCanceled)
	}
	if job.State() != StateFailed {
		t.Errorf("state = %s, want %s", job.State(), StateFailed)
	}
}

func TestCleanupCancelsJobsAndRejectsNewOnes(t *testing.T) {
	capture := newFakeCapture()
	capture.endless = true
	capture.frameDelay = 5 * time.Millisecond
	tr := New(capture, testConfig())

	job, _ := tr.Submit(context.Background(), &File{Name: "long.mp4", Type: "video/mp4"})
	time.Sleep(20 * time.Millisecond)
	tr.Cleanup()

	if _, err := waitJob(t, job); ReasonOf(err) != ReasonCanceled {
		t.Errorf("reason = %q, want %q", ReasonOf(err), ReasonCanceled)
	}
	if _, err := tr.Submit(context.Background(), &File{Name: "x.mp4"}); err == nil {
		t.Error("Submit after Cleanup should fail")
	}
}

func TestWorkerLimitQueuesJobs(t *testing.T) {
	capture := newFakeCapture()
	capture.endless = true
	capture.frameDelay = 5 * time.Millisecond

	cfg := testConfig()
	cfg.Workers = 1
	tr := New(capture, cfg)
	defer tr.Cleanup()

	first, _ := tr.Submit(context.Background(), &File{Name: "a.mp4", Type: "video/mp4"})
	second, _ := tr.Submit(context.Background(), &File{Name: "b.mp4", Type: "video/mp4"})
	time.Sleep(50 * time.Millisecond)

	// Either job may win the slot.
	states := map[State]int{first.State(): 1}
	states[second.State()]++
	if states[StateEncoding] != 1 || states[StateIdle] != 1 {
		t.Errorf("states = %s and %s, want one %s and one %s", first.State(), second.State(), StateEncoding, StateIdle)
	}
}

func TestJobRegistry(t *testing.T) {
	tr := New(newFakeCapture(), testConfig())

	job, _ := tr.Submit(context.Background(), &File{Name: "a.webm", Type: MimeWebM})
	if got, ok := tr.Job(job.ID); !ok || got != job {
		t.Fatal("Job() did not return submitted job")
	}

	tr.Forget(job.ID)
	waitJob(t, job)
	tr.Forget(job.ID)
	if _, ok := tr.Job(job.ID); ok {
		t.Error("finished job still registered after Forget")
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		want      bool
		codec     string
	}{
		{"vp9 and vp8", map[string]bool{MimeVP9: true, MimeVP8: true}, true, MimeVP9},
		{"vp8 only", map[string]bool{MimeVP8: true}, true, MimeVP8},
		{"none", map[string]bool{}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := newFakeCapture()
			capture.supported = tt.supported
			tr := New(capture, testConfig())
			if got := tr.Supported(); got != tt.want {
				t.Errorf("Supported() = %v, want %v", got, tt.want)
			}
			if got := tr.Codec(); got != tt.codec {
				t.Errorf("Codec() = %q, want %q", got, tt.codec)
			}
		})
	}
}

func TestProgressAt(t *testing.T) {
	tests := []struct {
		pos, total time.Duration
		want       int
	}{
		{0, time.Second, 0},
		{500 * time.Millisecond, time.Second, 50},
		{time.Second, time.Second, 99},
		{2 * time.Second, time.Second, 99},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		if got := progressAt(tt.pos, tt.total); got != tt.want {
			t.Errorf("progressAt(%v, %v) = %d, want %d", tt.pos, tt.total, got, tt.want)
		}
	}
}
