package cache

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when the key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
	Ping(ctx context.Context) error
}

// LoginGuard throttles repeated failed logins for one attempt key.
type LoginGuard interface {
	// Allow reports whether another login attempt may be evaluated for key.
	Allow(ctx context.Context, key string) (bool, error)
	// RegisterFailure counts a failed attempt and returns the current count.
	RegisterFailure(ctx context.Context, key string) (int64, error)
	// Reset forgets the failures recorded for key.
	Reset(ctx context.Context, key string) error
}
