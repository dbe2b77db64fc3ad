package assets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// RepositoryPort defines data access methods for assets.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Asset, error)
	List(ctx context.Context, q ListQuery, now time.Time) ([]Asset, error)
	History(ctx context.Context, assetID int64) ([]HistoryEntry, error)
	Summary(ctx context.Context, now time.Time) (Summary, error)
	DueBy(ctx context.Context, before time.Time) ([]Asset, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional surface used by asset mutations.
type TxRepository interface {
	Insert(ctx context.Context, asset *Asset) error
	// Lock loads the asset and holds its row lock until commit.
	Lock(ctx context.Context, id int64) (Asset, error)
	UserRef(ctx context.Context, id int64) (UserRef, error)
	SetAssignment(ctx context.Context, id int64, userID *int64, returnDate *time.Time) error
	SetLost(ctx context.Context, id int64, lost bool) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
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

// Get loads one asset.
func (r *Repository) Get(ctx context.Context, id int64) (Asset, error) {
	return getAsset(ctx, r.pool, getAssetSQL, id)
}

// List returns assets matching q, newest first.
func (r *Repository) List(ctx context.Context, q ListQuery, now time.Time) ([]Asset, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	switch q.Filter {
	case FilterAssigned:
		where = append(where, "a.assigned_user_id IS NOT NULL")
	case FilterAvailable:
		where = append(where, "a.assigned_user_id IS NULL")
	case FilterLost:
		where = append(where, "a.lost")
	case FilterOverdue:
		where = append(where, "a.assigned_user_id IS NOT NULL AND a.return_date < "+arg(now))
	}
	if q.AssigneeID != nil {
		where = append(where, "a.assigned_user_id = "+arg(*q.AssigneeID))
	}
	sql := selectAssetColumns
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return listAssets(ctx, r.pool, sql+listOrderSQL, args...)
}

// History returns the assignment log of an asset, newest first.
func (r *Repository) History(ctx context.Context, assetID int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, historySQL, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AssetID, &h.Action, &h.UserID, &h.UserName, &h.ActorID, &h.ActorName, &h.ReturnDate, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Summary counts assets by state.
func (r *Repository) Summary(ctx context.Context, now time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, summarySQL, now).Scan(&s.Total, &s.Assigned, &s.Available, &s.Overdue, &s.Lost)
	return s, err
}

// DueBy returns assigned assets whose return date is at or before before.
func (r *Repository) DueBy(ctx context.Context, before time.Time) ([]Asset, error) {
	return listAssets(ctx, r.pool, dueAssetsSQL, before)
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

func (t *txRepo) Insert(ctx context.Context, a *Asset) error {
	err := t.tx.QueryRow(ctx, insertAssetSQL,
		a.Name, a.Type, a.Description, a.SerialNo, a.Code, a.PurchasedAt, a.AddedBy.ID, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		if db.IsUniqueViolation(err, codeUniqueKey) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("assets: insert: %w", err)
	}
	return nil
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Asset, error) {
	return getAsset(ctx, t.tx, lockAssetSQL, id)
}

func (t *txRepo) UserRef(ctx context.Context, id int64) (UserRef, error) {
	var u UserRef
	err := t.tx.QueryRow(ctx, userRefSQL, id).Scan(&u.ID, &u.Name, &u.Email)
	if db.IsNoRows(err) {
		return UserRef{}, ErrUnknownAssignee
	}
	return u, err
}

func (t *txRepo) SetAssignment(ctx context.Context, id int64, userID *int64, returnDate *time.Time) error {
	_, err := t.tx.Exec(ctx, setAssignmentSQL, id, userID, returnDate)
	if err != nil && db.IsForeignKeyViolation(err, "") {
		return ErrUnknownAssignee
	}
	return err
}

func (t *txRepo) SetLost(ctx context.Context, id int64, lost bool) error {
	_, err := t.tx.Exec(ctx, setLostSQL, id, lost)
	return err
}

func (t *txRepo) AppendHistory(ctx context.Context, h HistoryEntry) error {
	_, err := t.tx.Exec(ctx, insertHistorySQL, h.AssetID, h.UserID, h.Action, h.ActorID, h.ReturnDate, h.At)
	return err
}

func (t *txRepo) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAudit(ctx, t.tx, log)
}

func getAsset(ctx context.Context, q db.Querier, sql string, id int64) (Asset, error) {
	a, err := scanAsset(q.QueryRow(ctx, sql, id))
	if db.IsNoRows(err) {
		return Asset{}, ErrAssetNotFound
	}
	return a, err
}

func listAssets(ctx context.Context, q db.Querier, sql string, args ...any) ([]Asset, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a             Asset
		assigneeID    *int64
		assigneeName  *string
		assigneeEmail *string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Type, &a.Description, &a.SerialNo, &a.Code, &a.PurchasedAt,
		&a.ReturnDate, &a.Lost, &a.CreatedAt,
		&a.AddedBy.ID, &a.AddedBy.Name, &a.AddedBy.Email,
		&assigneeID, &assigneeName, &assigneeEmail,
	)
	if err != nil {
		return Asset{}, err
	}
	if assigneeID != nil {
		a.Assignee = &UserRef{ID: *assigneeID}
		if assigneeName != nil {
			a.Assignee.Name = *assigneeName
		}
		if assigneeEmail != nil {
			a.Assignee.Email = *assigneeEmail
		}
	}
	return a, nil
}

var _ RepositoryPort = (*Repository)(nil)
