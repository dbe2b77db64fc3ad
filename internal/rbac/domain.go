package rbac

import (
	"context"

	"github.com/inventory-manager/inventory-manager/internal/roles"
)

// Principal describes the authenticated actor.
type Principal struct {
	ID        int64
	Email     string
	Name      string
	Role      roles.Role
	AvatarKey string
}

// HasAdmin is true for admins and super admins.
func (p *Principal) HasAdmin() bool { return p != nil && p.Role.HasAdmin() }

// IsSuper reports whether the principal is a super admin.
func (p *Principal) IsSuper() bool { return p != nil && p.Role.IsSuper() }

// IsStaff reports whether the principal holds the staff role.
func (p *Principal) IsStaff() bool { return p != nil && p.Role.IsStaff() }

// DisplayName falls back to the email when the user has not set a name.
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Ownable is implemented by records that may be held by a single user.
type Ownable interface {
	AssigneeID() (int64, bool)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the logged-in principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
