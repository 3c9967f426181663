package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrFlushUnsupported is returned when the response cannot be flushed
// incrementally.
var ErrFlushUnsupported = errors.New("streaming unsupported by response writer")

// EventStream writes Server-Sent Events to an HTTP response.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// NewEventStream writes the event-stream headers and a 200 status.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlushUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &EventStream{w: w, flusher: flusher}, nil
}

// Send writes one named event with v encoded as JSON.
func (es *EventStream) Send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	es.seq++
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", es.seq)
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)

	if _, err := es.w.Write([]byte(b.String())); err != nil {
		return err
	}
	es.flusher.Flush()
	return nil
}

// KeepAlive writes a comment line so proxies keep the connection open.
func (es *EventStream) KeepAlive() error {
	if _, err := es.w.Write([]byte(": keep-alive\n\n")); err != nil {
		return err
	}
	es.flusher.Flush()
	return nil
}
