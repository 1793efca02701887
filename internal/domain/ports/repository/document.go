package repository

import (
	"context"
	"time"

	"research-orchestrator/internal/domain/model"
)

type DocumentRepository interface {
	Create(ctx context.Context, tx Tx, d *model.Document) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Document, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Document, error)
	ListByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.Document, error)
	Touch(ctx context.Context, tx Tx, id string, at time.Time) error
	Delete(ctx context.Context, tx Tx, id string) error
}
