package repository

import (
	"context"

	"research-orchestrator/internal/domain/model"
)

type UserRepository interface {
	// Save upserts the user with its encrypted keys.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}
