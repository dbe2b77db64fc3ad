package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx so query helpers can run
// inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ErrConcurrentUpdate is returned when Postgres aborts a transaction because a
// concurrent one changed the rows it read.
var ErrConcurrentUpdate = shared.NewError(shared.ErrConflict, "The record was changed by someone else, please try again")

// WithTx executes fn within a transaction at the given isolation level.
//
// Flows that check a row and then write it rely on row locks or advisory
// locks, so they run at pgx.ReadCommitted: each statement after the lock sees
// the rows committed by the previous holder. Serialization failures surface as
// ErrConcurrentUpdate.
func WithTx(ctx context.Context, b Beginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return conflictOr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return conflictOr(fmt.Errorf("platform/db: commit tx: %w", err))
	}
	return nil
}

func conflictOr(err error) error {
	if IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return err
}
