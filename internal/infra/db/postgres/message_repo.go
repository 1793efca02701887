package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, job_id, role, content, type, status, data, created_at, updated_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var role, kind string
	var status sql.NullString
	var data []byte
	if err := row.Scan(&m.ID, &m.JobID, &role, &m.Content, &kind, &status, &data, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	m.Kind = model.Kind(kind)
	if status.Valid {
		m.Status = model.Status(status.String)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m.Data); err != nil {
			return nil, fmt.Errorf("decode message data: %w", err)
		}
	}
	return &m, nil
}

func encodeMessage(m *model.Message) (status sql.NullString, data string, err error) {
	if m.Status != "" {
		status = sql.NullString{String: string(m.Status), Valid: true}
	}
	b, err := json.Marshal(m.Data)
	if err != nil {
		return status, "", fmt.Errorf("encode message data: %w", err)
	}
	return status, string(b), nil
}

func (r *MessageRepo) Create(ctx context.Context, tx repository.Tx, m *model.Message) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	status, data, err := encodeMessage(m)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO messages (id, job_id, role, content, type, status, data, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9);`
	_, err = exec.Exec(ctx, q, m.ID, m.JobID, string(m.Role), m.Content, string(m.Kind), status, data, m.CreatedAt, m.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, m.JobID)
	default:
		return fmt.Errorf("insert message: %w", err)
	}
}

// Update never inserts, so a write for a deleted job is a no-op that
// reports ErrNotFound.
func (r *MessageRepo) Update(ctx context.Context, tx repository.Tx, m *model.Message) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	status, data, err := encodeMessage(m)
	if err != nil {
		return err
	}
	const q = `UPDATE messages SET status=$2, data=$3::jsonb, updated_at=$4 WHERE id=$1;`
	tag, err := exec.Exec(ctx, q, m.ID, status, data, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Message, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE job_id=$1 ORDER BY created_at ASC, id ASC;`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *MessageRepo) DeleteByJob(ctx context.Context, tx repository.Tx, jobID string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, `DELETE FROM messages WHERE job_id=$1;`, jobID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListStale(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Message, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + messageColumns + `
  FROM messages
 WHERE role = 'assistant'
   AND status IN ('planning','searching','extracting','compiling')
   AND updated_at < $1
 ORDER BY updated_at ASC
 LIMIT $2;`
	rows, err := exec.Query(ctx, q, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale messages: %w", err)
	}
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]*model.Message, error) {
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
