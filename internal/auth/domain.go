package auth

import (
	"time"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// ErrAlreadySetup is returned once the first account exists.
var ErrAlreadySetup = shared.NewError(shared.ErrConflict, "Inventory Manager has already been set up")

// LoginSession is the audit record of a login kept in user_sessions.
type LoginSession struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	IP        string
	UserAgent string
	Client    string
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `validate:"required,email" form:"email"`
	Password string `validate:"required" form:"password"`
}

// SetupInput creates the first super admin.
type SetupInput struct {
	Name            string `validate:"required,max=120" form:"name"`
	Email           string `validate:"required,email,max=254" form:"email"`
	Password        string `validate:"required,min=8,max=72" form:"password"`
	PasswordConfirm string `validate:"required,eqfield=Password" form:"password_confirm"`
}
