// Package storage keeps uploaded files on local disk or in an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// Providers accepted by New.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// ErrObjectNotFound is returned by Get for unknown keys.
var ErrObjectNotFound = shared.NewError(shared.ErrNotFound, "File not found")

// Store reads and writes opaque objects by key.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	LocalDir  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// New returns the Store for cfg.Provider.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderLocal:
		return NewLocal(cfg.LocalDir)
	case ProviderS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown provider %q", cfg.Provider)
	}
}

// CleanKey normalises a key and rejects path traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: empty key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return cleaned, nil
}
