package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return GetByID(ctx, r.pool, id)
}

// FindByEmail loads a user by case-insensitive email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return FindByEmail(ctx, r.pool, email)
}

// ListUsers returns all users ordered by role then name.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// MembersByRole groups users by role id.
func (r *Repository) MembersByRole(ctx context.Context) (map[int64][]roles.Member, error) {
	rows, err := r.pool.Query(ctx, listMembersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64][]roles.Member{}
	for rows.Next() {
		var (
			roleID int64
			m      roles.Member
		)
		if err := rows.Scan(&m.ID, &roleID, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		out[roleID] = append(out[roleID], m)
	}
	return out, rows.Err()
}

// UpdateProfile writes name, email and avatar key.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, name, email, avatarKey string) error {
	tag, err := r.pool.Exec(ctx, updateProfileSQL, id, name, email, avatarKey)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueIndex) {
			return shared.ErrEmailTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetByID loads a user using q, which may be a transaction.
func GetByID(ctx context.Context, q db.Querier, id int64) (User, error) {
	u, err := scanUser(q.QueryRow(ctx, getUserSQL, id))
	if db.IsNoRows(err) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// FindByEmail loads a user by email using q.
func FindByEmail(ctx context.Context, q db.Querier, email string) (User, error) {
	u, err := scanUser(q.QueryRow(ctx, getUserByEmailSQL, strings.TrimSpace(email)))
	if db.IsNoRows(err) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// EmailExists reports whether an account uses email.
func EmailExists(ctx context.Context, q db.Querier, email string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, emailExistsSQL, strings.TrimSpace(email)).Scan(&exists)
	return exists, err
}

// CountUsers returns the number of accounts.
func CountUsers(ctx context.Context, q db.Querier) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, countUsersSQL).Scan(&n)
	return n, err
}

// InsertUser creates an account using q. Callers that must create the user
// together with other rows pass their transaction. A duplicate email maps to
// shared.ErrEmailTaken.
func InsertUser(ctx context.Context, q db.Querier, in NewUser) (int64, error) {
	var hash any
	if in.PasswordHash != "" {
		hash = in.PasswordHash
	}
	var id int64
	err := q.QueryRow(ctx, insertUserSQL, strings.TrimSpace(in.Email), hash, strings.TrimSpace(in.Name), in.RoleID).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueIndex) {
			return 0, shared.ErrEmailTaken
		}
		return 0, fmt.Errorf("users: insert: %w", err)
	}
	return id, nil
}

// UpdatePasswordHash replaces the stored hash using q.
func UpdatePasswordHash(ctx context.Context, q db.Querier, id int64, hash string) error {
	tag, err := q.Exec(ctx, updatePasswordSQL, id, hash)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt,
		&u.Role.ID, &u.Role.Short, &u.Role.Title, &u.Role.Description, &u.Role.Level, &u.Role.CreatedAt,
	)
	return u, err
}

var _ RepositoryPort = (*Repository)(nil)
