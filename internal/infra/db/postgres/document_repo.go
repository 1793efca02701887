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

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `id, user_id, file_name, file_size, mime_type, collection_name, chunk_ids, total_chunks, uploaded_at, last_accessed_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(&d.ID, &d.UserID, &d.FileName, &d.FileSize, &d.MimeType, &d.CollectionName,
		&d.ChunkIDs, &d.TotalChunks, &d.UploadedAt, &d.LastAccessedAt); err != nil {
		return nil, err
	}
	if d.ChunkIDs == nil {
		d.ChunkIDs = []string{}
	}
	return &d, nil
}

func (r *DocumentRepo) Create(ctx context.Context, tx repository.Tx, d *model.Document) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err = exec.Exec(ctx, q, d.ID, d.UserID, d.FileName, d.FileSize, d.MimeType, d.CollectionName,
		d.ChunkIDs, d.TotalChunks, d.UploadedAt, d.LastAccessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(exec.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1;`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Document, error) {
	return r.list(ctx, tx, `SELECT `+documentColumns+` FROM documents WHERE user_id=$1 ORDER BY uploaded_at DESC;`, userID)
}

func (r *DocumentRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, tx, `SELECT `+documentColumns+` FROM documents WHERE id = ANY($1) ORDER BY uploaded_at DESC;`, ids)
}

func (r *DocumentRepo) Touch(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, `UPDATE documents SET last_accessed_at=$2 WHERE id=$1;`, id, at); err != nil {
		return fmt.Errorf("touch document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, `DELETE FROM documents WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Document, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
