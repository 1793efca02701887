package repository

import (
	"context"
	"time"

	"research-orchestrator/internal/domain/model"
)

// JobRepository is the durable side of the job table. Updates never insert:
// writing to a deleted job returns domain.ErrNotFound.
type JobRepository interface {
	Create(ctx context.Context, tx Tx, j *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Job, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.JobStatus, updatedAt time.Time) error
	SetDocuments(ctx context.Context, tx Tx, id string, documentIDs []string, updatedAt time.Time) error
	// RemoveDocument drops a document reference from every job holding it.
	RemoveDocument(ctx context.Context, tx Tx, documentID string) error
	Delete(ctx context.Context, tx Tx, id string) error
}

// MessageRepository stores conversation turns.
type MessageRepository interface {
	Create(ctx context.Context, tx Tx, m *model.Message) error
	// Update writes status, data and updated_at of an existing message.
	Update(ctx context.Context, tx Tx, m *model.Message) error
	// ListByJob returns the turns of a job ordered by created_at, then id.
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Message, error)
	DeleteByJob(ctx context.Context, tx Tx, jobID string) error
	// ListStale returns assistant turns still in a running status whose last
	// update is older than before.
	ListStale(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Message, error)
}
