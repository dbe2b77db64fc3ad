package roles

import (
	"context"
	"sync"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// ErrRoleNotFound is returned when a role short or id does not resolve.
var ErrRoleNotFound = shared.NewError(shared.ErrNotFound, "Role not found")

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetByShort(ctx context.Context, short string) (Role, error)
	GetByID(ctx context.Context, id int64) (Role, error)
}

// MemberDirectory lists users grouped by role id.
type MemberDirectory interface {
	MembersByRole(ctx context.Context) (map[int64][]Member, error)
}

// Service is the role registry. Roles are seeded by migration and only change
// with a deploy, so the list is loaded once and served from memory.
type Service struct {
	repo RepositoryPort

	mu    sync.RWMutex
	roles []Role
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles ordered by level.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	cached := s.roles
	s.mu.RUnlock()
	if cached != nil {
		out := make([]Role, len(cached))
		copy(out, cached)
		return out, nil
	}
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ErrRoleNotFound
	}
	s.mu.Lock()
	s.roles = roles
	s.mu.Unlock()
	out := make([]Role, len(roles))
	copy(out, roles)
	return out, nil
}

// Get resolves a role by short name.
func (s *Service) Get(ctx context.Context, short string) (Role, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return Role{}, err
	}
	for _, role := range roles {
		if role.Short == short {
			return role, nil
		}
	}
	return s.repo.GetByShort(ctx, short)
}

// GetByID resolves a role by id.
func (s *Service) GetByID(ctx context.Context, id int64) (Role, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return Role{}, err
	}
	for _, role := range roles {
		if role.ID == id {
			return role, nil
		}
	}
	return s.repo.GetByID(ctx, id)
}

// Lowest returns the least privileged role, given to open sign-ups.
func (s *Service) Lowest(ctx context.Context) (Role, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return Role{}, err
	}
	lowest := roles[0]
	for _, role := range roles[1:] {
		if role.Level > lowest.Level {
			lowest = role
		}
	}
	return lowest, nil
}

// Grantable returns the roles a sender may offer in an invitation: those whose
// level is strictly greater than the sender's.
func (s *Service) Grantable(ctx context.Context, sender Role) ([]Role, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	var out []Role
	for _, role := range roles {
		if role.Level > sender.Level {
			out = append(out, role)
		}
	}
	return out, nil
}

// ListWithMembers pairs every role with its users for the roles page.
func (s *Service) ListWithMembers(ctx context.Context, members MemberDirectory) ([]WithMembers, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	byRole := map[int64][]Member{}
	if members != nil {
		byRole, err = members.MembersByRole(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make([]WithMembers, 0, len(roles))
	for _, role := range roles {
		out = append(out, WithMembers{Role: role, Members: byRole[role.ID]})
	}
	return out, nil
}
