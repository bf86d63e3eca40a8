// Package kvstore is the key-value blob store used to keep conversation
// state across process restarts.
package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store is a flat key to blob mapping
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix, in ascending order
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
