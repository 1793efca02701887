package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"research-orchestrator/internal/domain/model"
)

// SSESink writes events as server-sent "data:" frames. Writes are
// serialized; after Close every write fails with ErrSinkClosed.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	done    chan struct{}
}

var _ Sink = (*SSESink)(nil)

func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSESink{w: w, flusher: f, done: make(chan struct{})}, nil
}

func (s *SSESink) Send(ctx context.Context, evt model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.write("data: " + string(b) + "\n\n")
}

// Heartbeat writes an SSE comment line to keep idle proxies from closing
// the connection.
func (s *SSESink) Heartbeat() error {
	return s.write(": ping\n\n")
}

func (s *SSESink) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Done is closed by Close.
func (s *SSESink) Done() <-chan struct{} { return s.done }
