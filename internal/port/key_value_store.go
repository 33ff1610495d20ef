package port

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

type KeyValueStore interface {
	// Get returns the stored value, or ErrKeyNotFound when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key; removing an absent key is not an error
	Remove(ctx context.Context, key string) error
}
