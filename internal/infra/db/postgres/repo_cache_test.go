//go:build !integration

package postgres

import (
	"context"
	"testing"
	"time"

	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
)

func TestUserRepoCache_HitAfterMiss(t *testing.T) {
	calls := 0
	inner := &mockInnerUserRepo{
		FindByIDFunc: func(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
			calls++
			return &model.User{ID: id, EncryptedTavilyKey: "enc"}, nil
		},
		SaveFunc: func(context.Context, repository.Tx, *model.User) error { return nil },
	}
	cache := newMockRedis()
	repo := NewUserRepoCacheDecorator(inner, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		u, err := repo.FindByID(ctx, nil, "u1")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if u.EncryptedTavilyKey != "enc" {
			t.Errorf("unexpected user %+v", u)
		}
	}
	if calls != 1 {
		t.Errorf("expected one inner call, got %d", calls)
	}

	if err := repo.Save(ctx, nil, &model.User{ID: "u1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := cache.data[userKey("u1")]; ok {
		t.Error("save should invalidate the cached user")
	}
}

func TestMessageRepoCache_OnlySettledThreadsAreCached(t *testing.T) {
	user, assistant := model.NewPair("job-1", "q", model.KindResearch, model.Now())
	calls := 0
	inner := &mockInnerMessageRepo{
		ListByJobFunc: func(context.Context, repository.Tx, string) ([]*model.Message, error) {
			calls++
			return []*model.Message{user.Clone(), assistant.Clone()}, nil
		},
		UpdateFunc: func(context.Context, repository.Tx, *model.Message) error { return nil },
	}
	cache := newMockRedis()
	repo := NewMessageRepoCacheDecorator(inner, cache, time.Minute)
	ctx := context.Background()

	_, _ = repo.ListByJob(ctx, nil, "job-1")
	_, _ = repo.ListByJob(ctx, nil, "job-1")
	if calls != 2 {
		t.Fatalf("running thread must not be cached, inner calls = %d", calls)
	}

	if err := assistant.Fail("boom", time.Now()); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	_, _ = repo.ListByJob(ctx, nil, "job-1")
	got, err := repo.ListByJob(ctx, nil, "job-1")
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected settled thread to be served from cache, inner calls = %d", calls)
	}
	if len(got) != 2 || got[1].Status != model.StatusError {
		t.Errorf("unexpected cached thread %+v", got)
	}

	if err := repo.Update(ctx, nil, assistant); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := cache.data[threadKey("job-1")]; ok {
		t.Error("update should invalidate the cached thread")
	}
}
