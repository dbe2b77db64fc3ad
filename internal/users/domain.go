package users

import (
	"io"
	"time"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// ErrUserNotFound is returned when a user id or email does not resolve.
var ErrUserNotFound = shared.NewError(shared.ErrNotFound, "User not found")

// ErrUnsupportedImage rejects profile pictures that are not images.
var ErrUnsupportedImage = shared.NewError(shared.ErrValidation, "Profile picture must be a PNG, JPEG, GIF or WebP image")

// User is an account. Every user holds exactly one role. PasswordHash is nil
// for accounts that never set a password.
type User struct {
	ID           int64
	Email        string
	PasswordHash *string
	Name         string
	Role         roles.Role
	AvatarKey    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName falls back to the email when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role.IsAdmin() }

// IsSuper reports whether the user holds the super admin role.
func (u User) IsSuper() bool { return u.Role.IsSuper() }

// HasAdmin is true for admins and super admins.
func (u User) HasAdmin() bool { return u.Role.HasAdmin() }

// IsStaff reports whether the user holds the staff role.
func (u User) IsStaff() bool { return u.Role.IsStaff() }

// NewUser carries the fields needed to insert an account.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	RoleID       int64
}

// Upload is a file received from a form.
type Upload struct {
	Body        io.Reader
	ContentType string
	Size        int64
}

// ProfileInput is the editable part of an account.
type ProfileInput struct {
	Name   string  `validate:"required,max=120" form:"name"`
	Email  string  `validate:"required,email,max=254" form:"email"`
	Avatar *Upload `validate:"-"`
}

// HeldAsset is an asset currently assigned to a user, shown on profiles.
type HeldAsset struct {
	ID         int64
	Code       string
	Name       string
	ReturnDate *time.Time
	Lost       bool
}
