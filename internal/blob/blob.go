// Package blob stores rendered table payloads outside the workflow
// store. Cached render results hold a key into a Bucket; the bucket
// never interprets the bytes it holds.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value. A missing blob under
// a live cache entry means the cache is corrupt, not empty.
var ErrNotFound = errors.New("blob: not found")

// Bucket is a flat key/value space. Implementations must be safe for
// concurrent use.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix. Used to
	// drop all attempts for one step in one call.
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}
