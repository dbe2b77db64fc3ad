package shared

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// TokenBytes is the entropy of invitation and reset tokens.
const TokenBytes = 32

// GenerateToken returns a URL-safe random token with TokenBytes of entropy.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("shared: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// FingerprintToken returns the hex SHA-256 of a raw token. Only fingerprints
// are stored so a leaked table cannot be replayed.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// NewPublicID returns a sortable identifier safe to show in pages and logs.
func NewPublicID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
