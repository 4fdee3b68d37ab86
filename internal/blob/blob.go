// Package blob stores image bytes and hands out time-limited download URLs.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// Store is an object store keyed by path-like strings such as "images/<id>.png".
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// PresignGet returns a URL that allows reading key for ttl.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
