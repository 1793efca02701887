//go:build !integration

package postgres

import (
	"context"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
	red "research-orchestrator/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerUserRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

type mockInnerMessageRepo struct {
	CreateFunc      func(ctx context.Context, tx repository.Tx, m *model.Message) error
	UpdateFunc      func(ctx context.Context, tx repository.Tx, m *model.Message) error
	ListByJobFunc   func(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Message, error)
	DeleteByJobFunc func(ctx context.Context, tx repository.Tx, jobID string) error
}

func (m *mockInnerMessageRepo) Create(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	return m.CreateFunc(ctx, tx, msg)
}
func (m *mockInnerMessageRepo) Update(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	return m.UpdateFunc(ctx, tx, msg)
}
func (m *mockInnerMessageRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Message, error) {
	return m.ListByJobFunc(ctx, tx, jobID)
}
func (m *mockInnerMessageRepo) DeleteByJob(ctx context.Context, tx repository.Tx, jobID string) error {
	return m.DeleteByJobFunc(ctx, tx, jobID)
}
func (m *mockInnerMessageRepo) ListStale(context.Context, repository.Tx, time.Time, int) ([]*model.Message, error) {
	return nil, nil
}

// mockRedisClient is an in-memory stand-in for the Redis wrapper.
type mockRedisClient struct {
	data map[string]string
	dels []string
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Ping(context.Context) error { return nil }
func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}
func (m *mockRedisClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", red.Nil
	}
	return v, nil
}
func (m *mockRedisClient) Incr(context.Context, string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }
func (m *mockRedisClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		m.dels = append(m.dels, k)
	}
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
