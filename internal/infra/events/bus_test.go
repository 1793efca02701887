//go:build !integration

package events

import (
	"sync"
	"testing"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/logging"
)

func recv(t *testing.T, s *Subscription) model.Event {
	t.Helper()
	select {
	case evt, ok := <-s.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.Event{}
}

func TestBus_FanOutInOrder(t *testing.T) {
	b := NewBus(16, logging.Nop())
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	for _, chunk := range []string{"a", "b", "c"} {
		b.Publish(model.StreamEvent("job-1", "m1", chunk))
	}
	for _, sub := range []*Subscription{a, c} {
		got := ""
		for i := 0; i < 3; i++ {
			got += recv(t, sub).Chunk
		}
		if got != "abc" {
			t.Errorf("expected chunks in publish order, got %q", got)
		}
	}
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	b := NewBus(16, logging.Nop())
	b.Publish(model.StreamEvent("job-1", "m1", "early"))

	s := b.Subscribe()
	defer s.Close()
	select {
	case evt := <-s.C():
		t.Fatalf("late subscriber received %+v", evt)
	default:
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := NewBus(1, logging.Nop())
	slow := b.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(model.StreamEvent("job-1", "m1", "x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(slow.C()) != 1 {
		t.Errorf("expected the buffer to hold exactly one event, got %d", len(slow.C()))
	}
	if !slow.Lagged() {
		t.Error("expected the full subscription to be marked lagged")
	}
	recv(t, slow)
	if _, ok := <-slow.C(); ok {
		t.Error("expected a lagged subscription to be closed after its buffered events")
	}
	if b.Subscribers() != 0 {
		t.Errorf("expected the lagged subscription to be removed, got %d", b.Subscribers())
	}
}

func TestBus_LaggedSubscriberDoesNotAffectOthers(t *testing.T) {
	b := NewBus(2, logging.Nop())
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	for _, chunk := range []string{"a", "b", "c"} {
		b.Publish(model.StreamEvent("job-1", "m1", chunk))
		if chunk != "c" {
			recv(t, fast)
		}
	}
	if got := recv(t, fast).Chunk; got != "c" {
		t.Errorf("expected the healthy subscriber to get every event, got %q", got)
	}
	if fast.Lagged() || !slow.Lagged() {
		t.Errorf("unexpected lag state fast=%v slow=%v", fast.Lagged(), slow.Lagged())
	}
	if b.Subscribers() != 1 {
		t.Errorf("expected one subscriber left, got %d", b.Subscribers())
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus(4, logging.Nop())
	s := b.Subscribe()
	s.Close()
	s.Close()

	if _, ok := <-s.C(); ok {
		t.Error("expected closed channel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", b.Subscribers())
	}
	// Publishing after close must not panic.
	b.Publish(model.StreamEvent("job-1", "m1", "x"))
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	b := NewBus(8, logging.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		s := b.Subscribe()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(model.StreamEvent("job-1", "m1", "x"))
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
