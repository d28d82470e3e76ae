// Package blob stores opaque objects (avatars, map thumbnails) in an S3
// compatible bucket, or in memory for development and tests.
package blob

import (
	"context"
	"errors"
	"io"
)

var ErrEmptyKey = errors.New("blob: empty key")

// Store is the object-store boundary the service consumes.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
