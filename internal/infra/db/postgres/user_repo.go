package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO users (id, encrypted_openrouter_key, encrypted_tavily_key, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  encrypted_openrouter_key = EXCLUDED.encrypted_openrouter_key,
  encrypted_tavily_key = EXCLUDED.encrypted_tavily_key,
  updated_at = EXCLUDED.updated_at;`
	if _, err := exec.Exec(ctx, q, u.ID, u.EncryptedOpenRouterKey, u.EncryptedTavilyKey, u.CreatedAt, u.UpdatedAt); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, encrypted_openrouter_key, encrypted_tavily_key, created_at, updated_at
  FROM users WHERE id=$1;`
	var u model.User
	if err := exec.QueryRow(ctx, q, id).Scan(&u.ID, &u.EncryptedOpenRouterKey, &u.EncryptedTavilyKey, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
