package handlers

import (
	"context"
	"errors"
	"sync"
)

// Commands sent back to the client's media element.
const (
	commandPlay  = "play"
	commandPause = "pause"
	commandSeek  = "seek"
)

var errElementReleased = errors.New("media element released")

// Command is an instruction for the browser's media element.
type Command struct {
	Op      string  `json:"op"`
	Seconds float64 `json:"seconds,omitempty"`
}

// remoteElement is a playback.Element driven over HTTP. Commands are queued
// until the next response to the client that owns the real element, and
// the current time is whatever the client last reported.
type remoteElement struct {
	mu       sync.Mutex
	current  float64
	queue    []Command
	released bool
}

func (e *remoteElement) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return errElementReleased
	}
	e.queue = append(e.queue, Command{Op: commandPlay})
	return nil
}

func (e *remoteElement) Pause() {
	e.push(Command{Op: commandPause})
}

func (e *remoteElement) Seek(seconds float64) {
	e.mu.Lock()
	e.current = seconds
	e.mu.Unlock()
	e.push(Command{Op: commandSeek, Seconds: seconds})
}

func (e *remoteElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *remoteElement) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	e.queue = nil
}

func (e *remoteElement) push(c Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.released {
		e.queue = append(e.queue, c)
	}
}

// report records the position the client's element is at.
func (e *remoteElement) report(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = seconds
}

// drain returns and clears the pending commands.
func (e *remoteElement) drain() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queue
	e.queue = nil
	if q == nil {
		q = []Command{}
	}
	return q
}
