package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// EventWriter writes SSE frames to one client connection. Events and
// keep-alives arrive from different goroutines; the mutex keeps frames
// whole because http.ResponseWriter is not safe for concurrent use.
type EventWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter prepares w for server-sent events and returns a writer.
// Returns false if the ResponseWriter does not support flushing.
func NewEventWriter(w http.ResponseWriter) (*EventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &EventWriter{w: w, flusher: flusher}, true
}

// WriteEvent writes one named event with a JSON-encoded data payload.
func (e *EventWriter) WriteEvent(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("write event %s: %w", name, err)
	}
	e.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment line and flushes.
// SSE spec: lines starting with : are comments, ignored by the client.
func (e *EventWriter) WriteKeepAlive() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	e.flusher.Flush()

	// Zero-byte write to detect closed connections.
	if _, err := e.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}
	return nil
}
