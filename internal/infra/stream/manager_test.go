//go:build !integration

package stream

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/events"
	"research-orchestrator/internal/infra/logging"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
	closed bool
	got    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 64)}
}

func (s *recordingSink) Send(_ context.Context, evt model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.events = append(s.events, evt)
	s.got <- struct{}{}
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) snapshot() ([]model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...), s.closed
}

func (s *recordingSink) wait(t *testing.T, n int) []model.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		evts, _ := s.snapshot()
		if len(evts) >= n {
			return evts
		}
		select {
		case <-s.got:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(evts))
		}
	}
}

func initSnapshot(jobID string) SnapshotFunc {
	return func(context.Context) (model.Event, error) {
		return model.InitEvent(&model.Job{ID: jobID}, nil), nil
	}
}

func TestManager_SnapshotFirstThenFilteredEvents(t *testing.T) {
	bus := events.NewBus(16, logging.Nop())
	m := NewManager(bus, logging.Nop())
	sink := newRecordingSink()

	s, err := m.Subscribe(context.Background(), "job-1", sink, initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer s.Close()

	bus.Publish(model.StreamEvent("job-2", "m2", "other"))
	bus.Publish(model.StreamEvent("job-1", "m1", "mine"))

	evts := sink.wait(t, 2)
	if evts[0].Type != model.EventInit {
		t.Fatalf("expected init event first, got %q", evts[0].Type)
	}
	if evts[1].Chunk != "mine" {
		t.Errorf("expected only job-1 events, got %+v", evts[1])
	}
}

func TestManager_NewSubscriberReplacesOld(t *testing.T) {
	bus := events.NewBus(16, logging.Nop())
	m := NewManager(bus, logging.Nop())

	first := newRecordingSink()
	s1, err := m.Subscribe(context.Background(), "job-1", first, initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second := newRecordingSink()
	s2, err := m.Subscribe(context.Background(), "job-1", second, initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer s2.Close()

	select {
	case <-s1.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced session did not stop")
	}
	if _, closed := first.snapshot(); !closed {
		t.Error("replaced sink should be closed")
	}

	bus.Publish(model.StreamEvent("job-1", "m1", "x"))
	second.wait(t, 2)
	if evts, _ := first.snapshot(); len(evts) != 1 {
		t.Errorf("replaced sink received events after replacement: %d", len(evts))
	}

	// Closing the stale session must not unregister the current one.
	s1.Close()
	if !m.Active("job-1") {
		t.Error("closing a replaced session removed the live one")
	}
}

func TestManager_UnsubscribeIsIdempotent(t *testing.T) {
	bus := events.NewBus(16, logging.Nop())
	m := NewManager(bus, logging.Nop())
	sink := newRecordingSink()
	s, err := m.Subscribe(context.Background(), "job-1", sink, initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	m.Unsubscribe("job-1")
	m.Unsubscribe("job-1")
	m.Unsubscribe("never-subscribed")

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	if m.Active("job-1") {
		t.Error("session still registered")
	}
	if bus.Subscribers() != 0 {
		t.Errorf("bus subscription leaked: %d", bus.Subscribers())
	}
}

func TestManager_SnapshotErrorAborts(t *testing.T) {
	bus := events.NewBus(16, logging.Nop())
	m := NewManager(bus, logging.Nop())
	sink := newRecordingSink()
	boom := errors.New("boom")

	_, err := m.Subscribe(context.Background(), "job-1", sink, func(context.Context) (model.Event, error) {
		return model.Event{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected snapshot error, got %v", err)
	}
	if m.Active("job-1") || bus.Subscribers() != 0 {
		t.Error("failed subscribe left state behind")
	}
	if _, closed := sink.snapshot(); !closed {
		t.Error("sink should be closed")
	}
}

func TestManager_ContextCancelEndsSession(t *testing.T) {
	bus := events.NewBus(16, logging.Nop())
	m := NewManager(bus, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s, err := m.Subscribe(ctx, "job-1", newRecordingSink(), initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not stop on cancel")
	}
	if m.Active("job-1") {
		t.Error("cancelled session still registered")
	}
}

func TestSSESink_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	if err != nil {
		t.Fatalf("NewSSESink: %v", err)
	}
	if err := sink.Send(context.Background(), model.StreamEvent("job-1", "m1", "hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sink.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	_ = sink.Close()
	if err := sink.Heartbeat(); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed after close, got %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.Contains(body, `"chunk":"hi"`) {
		t.Errorf("unexpected frame: %q", body)
	}
	if !strings.HasSuffix(body, ": ping\n\n") {
		t.Errorf("missing heartbeat: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
}

// gatedSink accepts the snapshot, then holds every relayed event until
// release is closed.
type gatedSink struct {
	*recordingSink
	release chan struct{}
}

func (s *gatedSink) Send(ctx context.Context, evt model.Event) error {
	if evt.Type != model.EventInit {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.recordingSink.Send(ctx, evt)
}

func TestManager_LaggingSubscriberIsClosed(t *testing.T) {
	bus := events.NewBus(1, logging.Nop())
	m := NewManager(bus, logging.Nop())
	sink := &gatedSink{recordingSink: newRecordingSink(), release: make(chan struct{})}

	sess, err := m.Subscribe(context.Background(), "job-1", sink, initSnapshot("job-1"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for _, chunk := range []string{"a", "b", "c"} {
		bus.Publish(model.StreamEvent("job-1", "m1", chunk))
	}
	close(sink.release)

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("a lagging session must end so the client can resubscribe")
	}
	if _, closed := sink.snapshot(); !closed {
		t.Error("expected the sink to be closed")
	}
	if m.Active("job-1") {
		t.Error("expected the session to be unregistered")
	}
}
