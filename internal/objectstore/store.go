// Package objectstore uploads and fetches note content in an S3 compatible
// object store.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/kalambet/mdnotes/internal/apperr"
)

const (
	// ContentType is set on every uploaded note.
	ContentType = "text/markdown"

	// DefaultMaxSize is the upload limit when none is configured.
	DefaultMaxSize int64 = 10 << 20 // 10MB

	keyPrefix = "notes/"
)

// Store is the contract shared by the MinIO and in-memory backends.
type Store interface {
	// Upload stores size bytes from r under key and returns the URL clients
	// use to read the object.
	Upload(ctx context.Context, r io.Reader, size int64, key string) (string, error)
	// Get returns the full content of key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh object key of the form notes/<uuid>.md.
func NewKey() string {
	return keyPrefix + uuid.NewString() + ".md"
}

func checkSize(size, max int64) error {
	if size <= 0 {
		return apperr.E(apperr.InvalidInput, "file is empty", nil)
	}
	if max > 0 && size > max {
		return apperr.E(apperr.InvalidInput, fmt.Sprintf("file size exceeds maximum allowed size of %d bytes", max), nil)
	}
	return nil
}

func checkKey(key string) error {
	if key == "" {
		return apperr.E(apperr.InvalidInput, "object key is empty", nil)
	}
	return nil
}
