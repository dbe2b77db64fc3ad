package roles

import "time"

// Role shorts seeded by the initial migration.
const (
	ShortSuperAdmin = "superadmin"
	ShortAdmin      = "admin"
	ShortStaff      = "staff"
)

// Role is a named permission level. Lower Level means more privilege.
type Role struct {
	ID          int64
	Short       string
	Title       string
	Description string
	Level       int
	CreatedAt   time.Time
}

// IsSuper reports whether the role is the super administrator role.
func (r Role) IsSuper() bool { return r.Short == ShortSuperAdmin }

// IsAdmin reports whether the role is the administrator role.
func (r Role) IsAdmin() bool { return r.Short == ShortAdmin }

// HasAdmin is true for admins and super admins.
func (r Role) HasAdmin() bool { return r.IsAdmin() || r.IsSuper() }

// IsStaff reports whether the role is the staff role.
func (r Role) IsStaff() bool { return r.Short == ShortStaff }

// Outranks reports whether r is at least as privileged as other.
func (r Role) Outranks(other Role) bool { return r.Level <= other.Level }

// Member is a user listed under a role on the roles page.
type Member struct {
	ID    int64
	Name  string
	Email string
}

// WithMembers groups a role with the users holding it.
type WithMembers struct {
	Role    Role
	Members []Member
}
