// Package stream relays bus events to at most one live subscriber per job.
package stream

import (
	"context"
	"errors"
	"sync"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/infra/events"
	"research-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var ErrSinkClosed = errors.New("stream sink closed")

// Sink receives the events of one job. Close must be safe to call while a
// Send is in flight and more than once.
type Sink interface {
	Send(ctx context.Context, evt model.Event) error
	Close() error
}

// SnapshotFunc builds the init event for a new subscriber.
type SnapshotFunc func(ctx context.Context) (model.Event, error)

type Manager struct {
	bus      *events.Bus
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zerolog.Logger
}

func NewManager(bus *events.Bus, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "StreamManager").Logger()
	return &Manager{bus: bus, sessions: make(map[string]*Session), log: &l}
}

// Subscribe makes sink the only live subscriber of jobID. A previous
// session for the job is closed first. The snapshot is sent before any
// relayed event; the bus subscription is taken before the snapshot is built
// so nothing published in between is lost.
func (m *Manager) Subscribe(ctx context.Context, jobID string, sink Sink, snapshot SnapshotFunc) (*Session, error) {
	sub := m.bus.Subscribe()
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		jobID:  jobID,
		sink:   sink,
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
		m:      m,
	}

	m.mu.Lock()
	prev := m.sessions[jobID]
	m.sessions[jobID] = s
	m.mu.Unlock()
	metrics.StreamOpened()

	if prev != nil {
		metrics.IncStreamReplaced()
		m.log.Debug().Str("job_id", jobID).Msg("replacing stream subscriber")
		prev.shutdown()
	}

	evt, err := snapshot(sctx)
	if err == nil {
		err = sink.Send(sctx, evt)
	}
	if err != nil {
		close(s.done)
		s.Close()
		return nil, err
	}

	go s.relay(sctx)
	return s, nil
}

// Unsubscribe closes the job's session if there is one.
func (m *Manager) Unsubscribe(jobID string) {
	m.mu.Lock()
	s := m.sessions[jobID]
	delete(m.sessions, jobID)
	m.mu.Unlock()
	if s != nil {
		s.shutdown()
	}
}

// Active reports whether jobID has a live session.
func (m *Manager) Active(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[jobID]
	return ok
}

func (m *Manager) remove(jobID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[jobID] == s {
		delete(m.sessions, jobID)
	}
}

// Session is one subscriber's relay.
type Session struct {
	jobID  string
	sink   Sink
	sub    *events.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	m      *Manager
}

// Done is closed when the relay has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends the session and unregisters it if it is still current.
func (s *Session) Close() {
	s.m.remove(s.jobID, s)
	s.shutdown()
}

func (s *Session) shutdown() {
	s.once.Do(func() {
		s.cancel()
		s.sub.Close()
		_ = s.sink.Close()
		metrics.StreamClosed()
	})
}

func (s *Session) relay(ctx context.Context) {
	defer close(s.done)
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.sub.C():
			if !ok {
				if s.sub.Lagged() {
					s.m.log.Warn().Str("job_id", s.jobID).Msg("stream subscriber fell behind, closing")
				}
				return
			}
			if evt.JobID != s.jobID {
				continue
			}
			if err := s.sink.Send(ctx, evt); err != nil {
				if !errors.Is(err, ErrSinkClosed) {
					s.m.log.Debug().Err(err).Str("job_id", s.jobID).Msg("stream send failed")
				}
				return
			}
		}
	}
}
