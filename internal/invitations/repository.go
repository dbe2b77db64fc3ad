package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// RepositoryPort defines data access methods for invitations.
type RepositoryPort interface {
	FindPending(ctx context.Context, tokenHash string) (Invitation, error)
	ListBySender(ctx context.Context, senderID int64) ([]Invitation, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes that must share a transaction.
type TxRepository interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	InsertInvitation(ctx context.Context, inv *Invitation) error
	InsertUser(ctx context.Context, in users.NewUser) (int64, error)
	Consume(ctx context.Context, tokenHash string, userID int64, at time.Time) (bool, error)
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

// FindPending returns the unaccepted invitation with the token fingerprint.
func (r *Repository) FindPending(ctx context.Context, tokenHash string) (Invitation, error) {
	inv, err := scanInvitation(r.pool.QueryRow(ctx, findPendingSQL, tokenHash))
	if db.IsNoRows(err) {
		return Invitation{}, ErrInvalidInvite
	}
	return inv, err
}

// ListBySender returns the most recent invitations a user sent.
func (r *Repository) ListBySender(ctx context.Context, senderID int64) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx, listBySenderSQL, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
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

func (t *txRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return users.EmailExists(ctx, t.tx, email)
}

func (t *txRepo) InsertInvitation(ctx context.Context, inv *Invitation) error {
	err := t.tx.QueryRow(ctx, insertInvitationSQL,
		inv.PublicID, inv.TokenHash, inv.InviteeEmail, inv.Role.ID, inv.SenderID, inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		if db.IsUniqueViolation(err, tokenHashUniqueKey) {
			return shared.NewError(shared.ErrConflict, "Invitation token collision, please retry")
		}
		return fmt.Errorf("invitations: insert: %w", err)
	}
	return nil
}

func (t *txRepo) InsertUser(ctx context.Context, in users.NewUser) (int64, error) {
	return users.InsertUser(ctx, t.tx, in)
}

func (t *txRepo) Consume(ctx context.Context, tokenHash string, userID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, consumeInvitationSQL, tokenHash, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAudit(ctx, t.tx, log)
}

func scanInvitation(row pgx.Row) (Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID, &inv.PublicID, &inv.TokenHash, &inv.InviteeEmail, &inv.SenderID, &inv.Accepted,
		&inv.AcceptedBy, &inv.AcceptedAt, &inv.CreatedAt,
		&inv.Role.ID, &inv.Role.Short, &inv.Role.Title, &inv.Role.Description, &inv.Role.Level, &inv.Role.CreatedAt,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Invitation{}, fmt.Errorf("invitations: scan: %w", err)
	}
	return inv, err
}

var _ RepositoryPort = (*Repository)(nil)
