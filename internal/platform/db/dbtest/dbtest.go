// Package dbtest provides transaction fakes for repository tests.
package dbtest

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
)

// Recorder is a db.Beginner that records the options of every transaction it
// opens. The transactions it returns only support Commit and Rollback.
type Recorder struct {
	// CommitErr is returned by Commit on every transaction.
	CommitErr error

	mu        sync.Mutex
	options   []pgx.TxOptions
	commits   int
	rollbacks int
}

// BeginTx records opts and returns a fake transaction.
func (r *Recorder) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.options = append(r.options, opts)
	return &fakeTx{rec: r}, nil
}

// Levels returns the isolation level of each transaction in begin order.
func (r *Recorder) Levels() []pgx.TxIsoLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pgx.TxIsoLevel, len(r.options))
	for i, o := range r.options {
		out[i] = o.IsoLevel
	}
	return out
}

// Commits returns how many transactions committed successfully.
func (r *Recorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

// Rollbacks returns how many transactions were rolled back before commit.
func (r *Recorder) Rollbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollbacks
}

type fakeTx struct {
	pgx.Tx
	rec  *Recorder
	done bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.done = true
	if t.rec.CommitErr != nil {
		return t.rec.CommitErr
	}
	t.rec.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.rec.rollbacks++
	return nil
}

// DSNEnv names the variable holding a disposable database for tests that
// need real Postgres locking. Those tests truncate tables.
const DSNEnv = "INVENTORY_TEST_PG_DSN"

// Pool migrates the database named by DSNEnv, empties the application tables
// and returns a pool. The test is skipped when DSNEnv is unset.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	require.NoError(t, db.Migrate(dsn, nil))
	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, truncateSQL)
	require.NoError(t, err)
	return pool
}

const truncateSQL = `TRUNCATE audit_logs, password_resets, asset_assignments, invitations, user_sessions, assets, users RESTART IDENTITY CASCADE`

// InsertUser creates an account with the named role and returns its id.
func InsertUser(t testing.TB, pool *pgxpool.Pool, email, role string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, name, role_id) SELECT $1, $1, id FROM roles WHERE short = $2 RETURNING id`,
		email, role).Scan(&id)
	require.NoError(t, err)
	return id
}
