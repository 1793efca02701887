package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, user_id, title, status, depth, document_ids, created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status, depth string
	if err := row.Scan(&j.ID, &j.UserID, &j.Title, &status, &depth, &j.Documents, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.Depth = model.Depth(depth)
	if j.Documents == nil {
		j.Documents = []string{}
	}
	return &j, nil
}

func (r *JobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (id, user_id, title, status, depth, document_ids, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	docs := j.Documents
	if docs == nil {
		docs = []string{}
	}
	_, err = exec.Exec(ctx, q, j.ID, j.UserID, j.Title, string(j.Status), string(j.Depth), docs, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	j, err := scanJob(exec.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1;`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return j, nil
}

func (r *JobRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Job, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := exec.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, updatedAt time.Time) error {
	return r.update(ctx, tx, `UPDATE jobs SET status=$2, updated_at=$3 WHERE id=$1;`, id, string(status), updatedAt)
}

func (r *JobRepo) SetDocuments(ctx context.Context, tx repository.Tx, id string, documentIDs []string, updatedAt time.Time) error {
	if documentIDs == nil {
		documentIDs = []string{}
	}
	return r.update(ctx, tx, `UPDATE jobs SET document_ids=$2, updated_at=$3 WHERE id=$1;`, id, documentIDs, updatedAt)
}

func (r *JobRepo) RemoveDocument(ctx context.Context, tx repository.Tx, documentID string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `UPDATE jobs SET document_ids = array_remove(document_ids, $1) WHERE $1 = ANY(document_ids);`
	if _, err := exec.Exec(ctx, q, documentID); err != nil {
		return fmt.Errorf("remove document reference: %w", err)
	}
	return nil
}

// Delete removes the job; messages go with it through ON DELETE CASCADE.
func (r *JobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return r.update(ctx, tx, `DELETE FROM jobs WHERE id=$1;`, id)
}

func (r *JobRepo) update(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
