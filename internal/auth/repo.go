package auth

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mssola/user_agent"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

const (
	insertSessionSQL = `INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent, client)
VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))`
	deleteSessionSQL = `DELETE FROM user_sessions WHERE id = $1`
	// Serialises concurrent first-run setups until the transaction ends.
	setupLockSQL = `SELECT pg_advisory_xact_lock(hashtext('inventory.setup'))`
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	CreateSession(ctx context.Context, session LoginSession) error
	DeleteSession(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional part of first-run setup.
type TxRepository interface {
	LockSetup(ctx context.Context) error
	CountUsers(ctx context.Context) (int64, error)
	InsertUser(ctx context.Context, in users.NewUser) (int64, error)
	WriteAudit(ctx context.Context, log shared.AuditLog) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool  *pgxpool.Pool
	begin db.Beginner
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, begin: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (users.User, error) {
	return users.FindByEmail(ctx, r.pool, email)
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, s LoginSession) error {
	_, err := r.pool.Exec(ctx, insertSessionSQL, s.ID, s.UserID, s.ExpiresAt.UTC(), s.IP, s.UserAgent, s.Client)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteSessionSQL, id)
	return err
}

// CountUsers returns the number of accounts.
func (r *PGRepository) CountUsers(ctx context.Context) (int64, error) {
	return users.CountUsers(ctx, r.pool)
}

// WithTx runs fn inside a ReadCommitted transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.begin, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSetup(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, setupLockSQL)
	return err
}

func (t *pgTx) CountUsers(ctx context.Context) (int64, error) {
	return users.CountUsers(ctx, t.tx)
}

func (t *pgTx) InsertUser(ctx context.Context, in users.NewUser) (int64, error) {
	return users.InsertUser(ctx, t.tx, in)
}

func (t *pgTx) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAudit(ctx, t.tx, log)
}

// ClientSummary turns a User-Agent header into "Browser version on OS".
func ClientSummary(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := user_agent.New(ua)
	name, version := parsed.Browser()
	if parsed.Bot() {
		return "bot: " + name
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := parsed.OS(); os != "" {
		summary += " on " + os
	}
	return summary
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var _ Repository = (*PGRepository)(nil)
