package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
	"research-orchestrator/internal/infra/metrics"
	red "research-orchestrator/internal/infra/redis"
)

var _ repository.MessageRepository = (*messageRepoCacheDecorator)(nil)

// messageRepoCacheDecorator caches a job's durable message list. Only lists
// whose assistant turns have all settled are cached, and the TTL must stay
// below the in-memory eviction grace: a list cached just before a new pair
// commits then expires while that pair is still served from memory.
type messageRepoCacheDecorator struct {
	inner repository.MessageRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewMessageRepoCacheDecorator(inner repository.MessageRepository, cache red.RedisClient, ttl time.Duration) repository.MessageRepository {
	return &messageRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func threadKey(jobID string) string { return fmt.Sprintf("thread:%s", jobID) }

func (d *messageRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, m *model.Message) error {
	_ = d.cache.Del(ctx, threadKey(m.JobID))
	return d.inner.Create(ctx, tx, m)
}

func (d *messageRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, m *model.Message) error {
	_ = d.cache.Del(ctx, threadKey(m.JobID))
	return d.inner.Update(ctx, tx, m)
}

func (d *messageRepoCacheDecorator) DeleteByJob(ctx context.Context, tx repository.Tx, jobID string) error {
	_ = d.cache.Del(ctx, threadKey(jobID))
	return d.inner.DeleteByJob(ctx, tx, jobID)
}

func (d *messageRepoCacheDecorator) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Message, error) {
	key := threadKey(jobID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var msgs []*model.Message
		if json.Unmarshal([]byte(val), &msgs) == nil {
			metrics.IncCacheRequest("thread", "hit")
			return msgs, nil
		}
	}

	metrics.IncCacheRequest("thread", "miss")
	msgs, err := d.inner.ListByJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if d.ttl > 0 && settled(msgs) {
		if b, err := json.Marshal(msgs); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return msgs, nil
}

// ListStale always reads through; the reconciler needs fresh rows.
func (d *messageRepoCacheDecorator) ListStale(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Message, error) {
	return d.inner.ListStale(ctx, tx, before, limit)
}

func settled(msgs []*model.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && !m.Status.Terminal() {
			return false
		}
	}
	return true
}
