// Package kvstore defines the key-value substrate the pipeline runs on.
// Every cross-component read and write goes through this interface, which
// keeps the core testable and lets deployments swap the backing store.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key, list element, or hash field does not exist.
var ErrNotFound = errors.New("kvstore: not found")

// ScoredMember is a sorted-set member together with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the contract the pipeline consumes. Serialization is the
// caller's concern: values are stored as opaque bytes or strings.
type Store interface {
	// Plain keys
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Lists (newest-first via LPush + LTrim)
	LPush(ctx context.Context, key string, values ...interface{}) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRem(ctx context.Context, key string, count int64, value interface{}) error
	LLen(ctx context.Context, key string) (int64, error)
	RPop(ctx context.Context, key string) (string, error)

	// Hashes
	HSet(ctx context.Context, key, field string, value interface{}) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	// Sorted sets (score = unix seconds for time-indexed members)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	// Sets
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Scan returns all keys matching a prefix-bounded glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
