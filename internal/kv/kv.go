// Package kv defines the narrow expiring key-value contract the engine
// stores everything behind: tokens, sessions, chat contexts, rate-limit
// counters, and event history indexes.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Member is a sorted-set entry.
type Member struct {
	Score  float64
	Member string
}

// Store is the expiring key-value store contract. A TTL of zero means the
// key does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ZAdd(ctx context.Context, key string, members ...Member) error
	ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}
