package invitations

import (
	"time"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

var (
	// ErrRoleNotGrantable is returned when the sender may not offer the role.
	ErrRoleNotGrantable = shared.NewError(shared.ErrPermission, "You can only invite users into roles below your own")
	// ErrInvalidInvite covers unknown and already used invitation links.
	ErrInvalidInvite = shared.NewError(shared.ErrValidation, "This invitation link is invalid or has already been used")
	// ErrSignupClosed is returned for sign-ups without an invitation when open
	// sign-up is disabled.
	ErrSignupClosed = shared.NewError(shared.ErrPermission, "Sign-up requires an invitation")
	// ErrUnknownRole is returned when the invite form names no known role.
	ErrUnknownRole = shared.ValidationErrors{"role": "Choose a valid role"}
)

// Invitation binds an invitee email to a role. The raw token is only ever
// mailed; TokenHash is its fingerprint.
type Invitation struct {
	ID           int64
	PublicID     string
	TokenHash    string
	InviteeEmail string
	Role         roles.Role
	SenderID     int64
	Accepted     bool
	AcceptedBy   *int64
	AcceptedAt   *time.Time
	CreatedAt    time.Time
}

// InviteInput is the invite form.
type InviteInput struct {
	Email string `validate:"required,email,max=254" form:"email"`
	Role  string `validate:"required" form:"role"`
}

// SignupInput is the sign-up form. Invite is the raw token and may be empty.
type SignupInput struct {
	Invite          string `validate:"-" form:"invite"`
	Name            string `validate:"required,max=120" form:"name"`
	Email           string `validate:"required,email,max=254" form:"email"`
	Password        string `validate:"required,min=8,max=72" form:"password"`
	PasswordConfirm string `validate:"required,eqfield=Password" form:"password_confirm"`
}
