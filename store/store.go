// Package store provides durable key/value backends for search checkpoints.
//
// Every backend replaces a key atomically: a reader observes either the
// previous value or the new one, never a partial write.
package store

import (
	"context"
	"errors"
)

// Errors
var (
	ErrNotFound      = errors.New("store: key not found")
	ErrInvalidKey    = errors.New("store: invalid key")
	ErrClosed        = errors.New("store: closed")
	ErrOpenFailed    = errors.New("store: open failed")
	ErrMigrateFailed = errors.New("store: migration failed")
)

// Store is a checkpoint backend.
type Store interface {
	// Put atomically replaces the value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backend.
	Close() error
}

func validKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	return nil
}
