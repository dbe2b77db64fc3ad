package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenIsRandomAndURLSafe(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.False(t, strings.ContainsAny(a, "+/="))
}

func TestFingerprintTokenIgnoresSurroundingSpace(t *testing.T) {
	fp := FingerprintToken("abc")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, FingerprintToken("  abc\n"))
	assert.NotEqual(t, fp, FingerprintToken("abd"))
}

func TestNewPublicIDSortsByTime(t *testing.T) {
	earlier := NewPublicID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := NewPublicID(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Len(t, earlier, 26)
	assert.Less(t, earlier, later)
}

func TestHashAndCheckPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrValidation)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(&hash, "correct horse"))
	assert.False(t, CheckPassword(&hash, "wrong horse"))
	assert.False(t, CheckPassword(nil, "correct horse"))
}

func TestDomainErrorsMatchTheirCategory(t *testing.T) {
	wrapped := fmt.Errorf("users: insert: %w", ErrEmailTaken)
	assert.ErrorIs(t, wrapped, ErrEmailTaken)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.NotErrorIs(t, wrapped, ErrValidation)
	assert.Equal(t, "An account with this email already exists", UserSafeMessage(wrapped))
}

func TestUserSafeMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "", UserSafeMessage(nil))
	assert.Equal(t, "Something went wrong, please try again", UserSafeMessage(errors.New("pq: connection reset")))
	assert.Equal(t, "The requested item could not be found", UserSafeMessage(fmt.Errorf("x: %w", ErrNotFound)))
	assert.Equal(t, "name is required", UserSafeMessage(ValidationErrors{"name": "name is required"}))
}

type signupForm struct {
	Email           string `validate:"required,email" form:"email"`
	Password        string `validate:"required,min=8" form:"password"`
	PasswordConfirm string `validate:"eqfield=Password" form:"password_confirm"`
	Purchased       string `validate:"omitempty,datetime=2006-01-02" form:"purchased_date"`
}

func TestFormErrorsKeyedByFormField(t *testing.T) {
	v := NewValidator()
	assert.Nil(t, FormErrors(v.Struct(signupForm{Email: "a@b.co", Password: "longenough", PasswordConfirm: "longenough"})))

	verrs := FormErrors(v.Struct(signupForm{Email: "nope", Password: "short", PasswordConfirm: "other", Purchased: "10/03/2026"}))
	require.NotNil(t, verrs)
	assert.Equal(t, "Enter a valid email address", verrs["email"])
	assert.Equal(t, "password must be at least 8 characters", verrs["password"])
	assert.Equal(t, "Passwords must match", verrs["password_confirm"])
	assert.Equal(t, "purchased date must be a date (YYYY-MM-DD)", verrs["purchased_date"])

	var err error = verrs
	assert.ErrorIs(t, err, ErrValidation)
	var target ValidationErrors
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &target)
	assert.Contains(t, target, "email")
}
