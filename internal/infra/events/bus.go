// Package events is the in-process broadcaster for pipeline events.
package events

import (
	"sync"
	"sync/atomic"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.EventPublisher = (*Bus)(nil)

// Bus fans every published event out to all current subscriptions. It does
// no filtering and keeps no history. A subscriber whose buffer is full is
// closed as lagged: it has missed an event and must resubscribe.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	log    *zerolog.Logger
}

func NewBus(buffer int, logger *zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	l := logger.With().Str("component", "EventBus").Logger()
	return &Bus{subs: make(map[uint64]*Subscription), buffer: buffer, log: &l}
}

// Publish never blocks.
func (b *Bus) Publish(evt model.Event) {
	metrics.IncEventPublished(string(evt.Type))
	var lagged []uint64
	b.mu.RLock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			lagged = append(lagged, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range lagged {
		metrics.IncEventDropped()
		b.log.Warn().Uint64("subscriber", id).Str("job_id", evt.JobID).Msg("subscriber buffer full, closing lagged subscription")
		b.drop(id, true)
	}
}

// Subscribe registers a new subscription. Callers must Close it.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan model.Event, b.buffer), bus: b}
	b.subs[sub.id] = sub
	metrics.SetBusSubscribers(len(b.subs))
	return sub
}

func (b *Bus) drop(id uint64, lagged bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		sub.lagged.Store(lagged)
		close(sub.ch)
	}
	metrics.SetBusSubscribers(len(b.subs))
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscription is one consumer's queue. C is closed by Close, or by the bus
// when the subscriber falls behind.
type Subscription struct {
	id     uint64
	ch     chan model.Event
	bus    *Bus
	once   sync.Once
	lagged atomic.Bool
}

func (s *Subscription) C() <-chan model.Event { return s.ch }

// Lagged reports whether the bus closed the subscription because its buffer
// was full. Events buffered before that are still delivered.
func (s *Subscription) Lagged() bool { return s.lagged.Load() }

func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.drop(s.id, false) })
}
