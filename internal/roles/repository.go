package roles

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventory-manager/inventory-manager/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered from most to least privileged.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, listRolesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetByShort loads a role by its short name.
func (r *Repository) GetByShort(ctx context.Context, short string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, getRoleShortSQL, strings.ToLower(strings.TrimSpace(short))))
	if db.IsNoRows(err) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

// GetByID loads a role by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, getRoleByIDSQL, id))
	if db.IsNoRows(err) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Short, &role.Title, &role.Description, &role.Level, &role.CreatedAt)
	return role, err
}

var _ RepositoryPort = (*Repository)(nil)
