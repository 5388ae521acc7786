// Package store provides persistent key-value storage.
package store

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when a key is not present in the store.
var ErrNotExist = errors.New("store: key does not exist")

// Store is a persistent key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// List returns all key-value pairs whose keys start with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// Close releases resources associated with the store.
	Close() error
}
