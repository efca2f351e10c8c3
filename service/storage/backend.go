package storage

import (
	"context"
	"time"
)

// Backend is the atomic operation set shared by the presence store and
// the job queue. Production uses Redis; tests use the in-memory
// implementation. Every operation is safe under concurrent callers.
// No cross-key transactions are offered: invariants spanning two keys
// are eventually consistent and must self-heal at a higher layer.
type Backend interface {
	// Plain keys. ttl<=0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Hashes.
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Lists. LPush prepends, so index 0 is the most recent entry.
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Sorted sets, used for queue ordering. Lower score pops first.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZPopMin(ctx context.Context, key string) (member string, ok bool, err error)
	ZRangeByScore(ctx context.Context, key string, max float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)

	Close() error
}
