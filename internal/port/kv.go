package port

import (
	"context"
	"errors"
)

// KV is a single flat key/value namespace, the degraded storage backend.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// ErrClosed is returned by a KV used after Close.
var ErrClosed = errors.New("kv: closed")
