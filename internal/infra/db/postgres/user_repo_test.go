//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
)

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewUserRepo(testPool)
	ctx := context.Background()

	t.Run("should upsert keys", func(t *testing.T) {
		cleanup(t)

		u := model.NewUser("u1", model.Now())
		u.SetKey(model.ProviderOpenRouter, "sealed-or", model.Now())
		if err := repo.Save(ctx, nil, u); err != nil {
			t.Fatalf("Save: %v", err)
		}
		u.SetKey(model.ProviderTavily, "sealed-tv", model.Now())
		if err := repo.Save(ctx, nil, u); err != nil {
			t.Fatalf("Save update: %v", err)
		}

		got, err := repo.FindByID(ctx, nil, "u1")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.EncryptedOpenRouterKey != "sealed-or" || got.EncryptedTavilyKey != "sealed-tv" {
			t.Errorf("unexpected user %+v", got)
		}
	})

	t.Run("should report missing users", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, nil, "nobody"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
