package passwordreset

import (
	"fmt"
	"time"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// DefaultTTL is how long a reset link stays valid.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidToken covers unknown and already used reset links.
	ErrInvalidToken = shared.NewError(shared.ErrValidation, "This password reset link is invalid or has already been used")
	// ErrExpiredToken is returned for links older than the TTL.
	ErrExpiredToken = shared.NewError(shared.ErrExpired, "This password reset link has expired, please request a new one")
)

// Request is a single-use reset ticket bound to a user.
type Request struct {
	ID        int64
	PublicID  string
	TokenHash string
	UserID    int64
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Expired reports whether the request is older than ttl at now.
func (r Request) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// RequestInput is the "forgot password" form.
type RequestInput struct {
	Email string `validate:"required,email" form:"email"`
}

// PerformInput is the "choose a new password" form.
type PerformInput struct {
	Email           string `validate:"required,email" form:"email"`
	Password        string `validate:"required,min=8,max=72" form:"password"`
	PasswordConfirm string `validate:"required,eqfield=Password" form:"password_confirm"`
}

// HumanTTL renders a TTL for emails and pages, e.g. "24 hours".
func HumanTTL(ttl time.Duration) string {
	switch {
	case ttl == time.Hour:
		return "1 hour"
	case ttl > 0 && ttl%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(ttl/time.Hour))
	case ttl > 0 && ttl%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(ttl/time.Minute))
	}
	return ttl.String()
}
