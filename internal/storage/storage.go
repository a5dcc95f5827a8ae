package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Delete when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey is returned when a key or prefix cannot be stored safely.
var ErrInvalidKey = errors.New("invalid blob key")

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	// Key is the full key the blob was stored under.
	Key string

	// CreatedAt is when the blob was first written. Overwrites keep it.
	CreatedAt time.Time

	// UpdatedAt is when the blob was last written.
	UpdatedAt time.Time
}

// BlobStore is a generic key/value blob store. Put is an upsert: it creates
// the blob when missing and overwrites it otherwise.
type BlobStore interface {
	// EnsureNamespace creates the backing bucket, table or keyspace if needed.
	EnsureNamespace(ctx context.Context) error

	// Put stores data under key, replacing any previous content.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns at most limit blobs whose key starts with prefix, most
	// recently updated first.
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)

	// Delete removes the blob stored under key or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ValidateKey rejects empty keys and keys that try to escape their prefix.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
