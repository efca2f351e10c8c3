package storage

import (
	"context"
	"strconv"
	"time"

	errs "OpsFlow/tools/errs"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type redisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects and pings once so a dead Redis fails fast
// at startup instead of on the first presence write.
func NewRedisBackend(ctx context.Context, c RedisConfig) (Backend, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.ErrTransientInfra.WrapMsg("redis ping", "addr", c.Addr, "err", err)
	}
	return &redisBackend{rdb: rdb}, nil
}

// infra wraps any redis error as a retryable infrastructure error.
func infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.ErrTransientInfra.WrapMsg(op, "err", pkgerrors.WithStack(err))
}

func (b *redisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return infra("set", b.rdb.Set(ctx, key, value, ttl).Err())
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.rdb.Get(ctx, key).Result()
	if pkgerrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, infra("get", err)
	}
	return val, true, nil
}

func (b *redisBackend) Del(ctx context.Context, keys ...string) error {
	return infra("del", b.rdb.Del(ctx, keys...).Err())
}

func (b *redisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, infra("exists", err)
	}
	return n == 1, nil
}

func (b *redisBackend) Incr(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.Incr(ctx, key).Result()
	return n, infra("incr", err)
}

func (b *redisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return infra("expire", b.rdb.Expire(ctx, key, ttl).Err())
}

func (b *redisBackend) SAdd(ctx context.Context, key string, members ...string) error {
	return infra("sadd", b.rdb.SAdd(ctx, key, toAny(members)...).Err())
}

func (b *redisBackend) SRem(ctx context.Context, key string, members ...string) error {
	return infra("srem", b.rdb.SRem(ctx, key, toAny(members)...).Err())
}

func (b *redisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	out, err := b.rdb.SMembers(ctx, key).Result()
	return out, infra("smembers", err)
}

func (b *redisBackend) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := b.rdb.SIsMember(ctx, key, member).Result()
	return ok, infra("sismember", err)
}

func (b *redisBackend) SCard(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.SCard(ctx, key).Result()
	return n, infra("scard", err)
}

func (b *redisBackend) HSet(ctx context.Context, key, field, value string) error {
	return infra("hset", b.rdb.HSet(ctx, key, field, value).Err())
}

func (b *redisBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := b.rdb.HGet(ctx, key, field).Result()
	if pkgerrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, infra("hget", err)
	}
	return val, true, nil
}

func (b *redisBackend) HDel(ctx context.Context, key string, fields ...string) error {
	return infra("hdel", b.rdb.HDel(ctx, key, fields...).Err())
}

func (b *redisBackend) LPush(ctx context.Context, key string, values ...string) error {
	return infra("lpush", b.rdb.LPush(ctx, key, toAny(values)...).Err())
}

func (b *redisBackend) LTrim(ctx context.Context, key string, start, stop int64) error {
	return infra("ltrim", b.rdb.LTrim(ctx, key, start, stop).Err())
}

func (b *redisBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out, err := b.rdb.LRange(ctx, key, start, stop).Result()
	return out, infra("lrange", err)
}

func (b *redisBackend) LLen(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.LLen(ctx, key).Result()
	return n, infra("llen", err)
}

func (b *redisBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return infra("zadd", b.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (b *redisBackend) ZRem(ctx context.Context, key string, members ...string) error {
	return infra("zrem", b.rdb.ZRem(ctx, key, toAny(members)...).Err())
}

func (b *redisBackend) ZPopMin(ctx context.Context, key string) (string, bool, error) {
	zs, err := b.rdb.ZPopMin(ctx, key, 1).Result()
	if err != nil {
		return "", false, infra("zpopmin", err)
	}
	if len(zs) == 0 {
		return "", false, nil
	}
	mem, _ := zs[0].Member.(string)
	return mem, true, nil
}

func (b *redisBackend) ZRangeByScore(ctx context.Context, key string, max float64) ([]string, error) {
	out, err := b.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatFloat(max),
	}).Result()
	return out, infra("zrangebyscore", err)
}

func (b *redisBackend) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.ZCard(ctx, key).Result()
	return n, infra("zcard", err)
}

func (b *redisBackend) Close() error { return b.rdb.Close() }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
