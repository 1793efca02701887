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

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func userKey(id string) string { return fmt.Sprintf("user:id:%s", id) }

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	_ = d.cache.Del(ctx, userKey(u.ID))
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	key := userKey(id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}
