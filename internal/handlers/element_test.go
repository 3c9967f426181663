package handlers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRemoteElementQueuesCommands(t *testing.T) {
	el := &remoteElement{}
	ctx := context.Background()

	if err := el.Play(ctx); err != nil {
		t.Fatal(err)
	}
	el.Seek(12.5)
	el.Pause()

	got := el.drain()
	want := []Command{{Op: commandPlay}, {Op: commandSeek, Seconds: 12.5}, {Op: commandPause}}
	if len(got) != len(want) {
		t.Fatalf("drain() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if el.CurrentTime() != 12.5 {
		t.Errorf("CurrentTime() = %v after seek", el.CurrentTime())
	}
	if q := el.drain(); q == nil || len(q) != 0 {
		t.Errorf("second drain() = %#v, want empty non-nil", q)
	}

	el.report(20)
	if el.CurrentTime() != 20 {
		t.Errorf("CurrentTime() = %v after report", el.CurrentTime())
	}
}

func TestRemoteElementRelease(t *testing.T) {
	el := &remoteElement{}
	el.Pause()
	el.Release()

	if q := el.drain(); len(q) != 0 {
		t.Errorf("release should drop pending commands, got %+v", q)
	}
	if err := el.Play(context.Background()); !errors.Is(err, errElementReleased) {
		t.Errorf("Play() after release = %v", err)
	}
	el.Pause()
	if q := el.drain(); len(q) != 0 {
		t.Errorf("commands queued after release: %+v", q)
	}
}

func TestRemoteElementCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&remoteElement{}).Play(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Play() = %v, want context.Canceled", err)
	}
}

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry()
	a := &liveSession{id: "a", element: &remoteElement{}}
	b := &liveSession{id: "b", element: &remoteElement{}}
	r.add(a)
	r.add(b)

	if r.len() != 2 {
		t.Fatalf("len() = %d", r.len())
	}
	if _, ok := r.get("a"); !ok {
		t.Error("get(a) missing")
	}

	a.touch(time.Now().Add(-time.Hour))
	expired := r.expire(time.Now().Add(-time.Minute))
	if len(expired) != 1 || expired[0].id != "a" {
		t.Errorf("expire() = %v, want [a]", expired)
	}

	if _, ok := r.remove("b"); !ok {
		t.Error("remove(b) missing")
	}
	if _, ok := r.remove("b"); ok {
		t.Error("remove(b) twice succeeded")
	}

	r.add(a)
	if all := r.drain(); len(all) != 1 || r.len() != 0 {
		t.Errorf("drain() = %d sessions, %d left", len(all), r.len())
	}
}
