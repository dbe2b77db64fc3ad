package passwordreset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// RepositoryPort defines data access methods for reset requests.
type RepositoryPort interface {
	FindUserByEmail(ctx context.Context, email string) (users.User, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (Request, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes that must share a transaction.
type TxRepository interface {
	InsertRequest(ctx context.Context, req *Request) error
	// LockByTokenHash loads the request and holds its row lock until commit.
	LockByTokenHash(ctx context.Context, tokenHash string) (Request, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
	MarkUsed(ctx context.Context, id int64, at time.Time) error
	WriteAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	begin db.Beginner
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, begin: pool}
}

// FindUserByEmail resolves the account a reset is requested for.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (users.User, error) {
	return users.FindByEmail(ctx, r.pool, email)
}

// FindByTokenHash loads a request without locking it.
func (r *Repository) FindByTokenHash(ctx context.Context, tokenHash string) (Request, error) {
	return findRequest(ctx, r.pool, findByTokenSQL, tokenHash)
}

// WithTx runs fn inside a ReadCommitted transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.begin, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertRequest(ctx context.Context, req *Request) error {
	err := t.tx.QueryRow(ctx, insertRequestSQL, req.PublicID, req.TokenHash, req.UserID, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		if db.IsUniqueViolation(err, tokenHashUniqueKey) {
			return shared.NewError(shared.ErrConflict, "Reset token collision, please retry")
		}
		return fmt.Errorf("passwordreset: insert: %w", err)
	}
	return nil
}

func (t *txRepo) LockByTokenHash(ctx context.Context, tokenHash string) (Request, error) {
	return findRequest(ctx, t.tx, lockByTokenSQL, tokenHash)
}

func (t *txRepo) GetUser(ctx context.Context, id int64) (users.User, error) {
	return users.GetByID(ctx, t.tx, id)
}

func (t *txRepo) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	return users.UpdatePasswordHash(ctx, t.tx, userID, hash)
}

func (t *txRepo) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, markUsedSQL, id, at)
	if err != nil {
		return fmt.Errorf("passwordreset: mark used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidToken
	}
	return nil
}

func (t *txRepo) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAudit(ctx, t.tx, log)
}

func findRequest(ctx context.Context, q db.Querier, sql, tokenHash string) (Request, error) {
	var req Request
	err := q.QueryRow(ctx, sql, tokenHash).Scan(&req.ID, &req.PublicID, &req.TokenHash, &req.UserID, &req.Used, &req.UsedAt, &req.CreatedAt)
	if db.IsNoRows(err) {
		return Request{}, ErrInvalidToken
	}
	if err != nil {
		return Request{}, fmt.Errorf("passwordreset: load: %w", err)
	}
	return req, nil
}

var _ RepositoryPort = (*Repository)(nil)
