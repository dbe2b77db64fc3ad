package rbac

import (
	"context"
	"fmt"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// RoleSource resolves role shorts, implemented by roles.Service.
type RoleSource interface {
	Get(ctx context.Context, short string) (roles.Role, error)
}

// Gate answers role and ownership questions for services and middleware.
type Gate struct {
	roles RoleSource
}

// NewGate constructs a Gate.
func NewGate(source RoleSource) *Gate {
	return &Gate{roles: source}
}

// Authorize allows the actor when their role level is equal to or lower than
// the level of the required role.
func (g *Gate) Authorize(ctx context.Context, actor *Principal, requiredShort string) error {
	if actor == nil {
		return shared.NewError(shared.ErrUnauthenticated, "Please log in to access this page")
	}
	required, err := g.roles.Get(ctx, requiredShort)
	if err != nil {
		return fmt.Errorf("rbac: resolve role %q: %w", requiredShort, err)
	}
	if actor.Role.Level <= required.Level {
		return nil
	}
	return DeniedFor(required)
}

// AuthorizeOwnerOrAdmin allows admins and the current holder of the record.
func (g *Gate) AuthorizeOwnerOrAdmin(actor *Principal, record Ownable) error {
	if actor == nil {
		return shared.NewError(shared.ErrUnauthenticated, "Please log in to access this page")
	}
	if actor.HasAdmin() {
		return nil
	}
	if record != nil {
		if id, ok := record.AssigneeID(); ok && id == actor.ID {
			return nil
		}
	}
	return shared.ErrPermissionDenied
}

// DeniedFor builds the permission error shown when a role check fails.
func DeniedFor(required roles.Role) error {
	title := required.Title
	if title == "" {
		title = required.Short
	}
	return shared.NewError(shared.ErrPermission, fmt.Sprintf("Only %s are allowed to access this page", title))
}
