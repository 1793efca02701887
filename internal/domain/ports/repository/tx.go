package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque storage handle. Repositories accept nil for the
// non-transactional path; the concrete type is decided by the infra layer
// (pgx.Tx for Postgres).
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction. A job, its
// first user/assistant pair and any cascade delete go through here so they
// land or fail together:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		if err := jobs.Create(ctx, tx, job); err != nil {
//			return err
//		}
//		return messages.Create(ctx, tx, user)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
