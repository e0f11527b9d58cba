package ratelimit

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
)

//go:embed sliding_log.lua
var slidingLogScript string

//go:embed token_bucket.lua
var tokenBucketScript string

const defaultRedisTimeout = 2 * time.Second

// RedisBackend is a distributed Backend. Compound operations (log prune +
// append, bucket refill + consume) run as Lua scripts so they are atomic
// across replicas; plain counters rely on INCRBY. Every call carries a
// bounded timeout, and failures surface as ErrRateLimitUnavailable so the
// caller can apply its fail-open/fail-closed policy deliberately.
type RedisBackend struct {
	client    *redis.Client
	timeout   time.Duration
	logScript *redis.Script
	tbScript  *redis.Script
}

type RedisOption func(*RedisBackend)

func WithTimeout(d time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		client:    client,
		timeout:   defaultRedisTimeout,
		logScript: redis.NewScript(slidingLogScript),
		tbScript:  redis.NewScript(tokenBucketScript),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Backend = (*RedisBackend)(nil)

func (b *RedisBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ierr.ErrRateLimitUnavailable, err)
}

func (b *RedisBackend) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	value, err := b.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	// first writer sets the ttl; the window key is never reused afterwards
	if value == delta {
		if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return value, nil
}

func (b *RedisBackend) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	value, err := b.client.DecrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	value, err := b.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}

func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (b *RedisBackend) TakeLog(ctx context.Context, key string, now time.Time, window time.Duration, limit, cost int64) (LogResult, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	suffix := make([]byte, 8)
	_, _ = rand.Read(suffix)

	raw, err := b.logScript.Run(ctx, b.client, []string{key},
		now.UnixMicro(),
		window.Microseconds(),
		limit,
		cost,
		hex.EncodeToString(suffix),
	).Result()
	if err != nil {
		return LogResult{}, unavailable(err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return LogResult{}, unavailable(fmt.Errorf("unexpected script reply %v", raw))
	}

	res := LogResult{
		Allowed: asInt64(values[0]) == 1,
		Total:   asInt64(values[1]),
	}
	if oldest := asInt64(values[2]); oldest > 0 {
		res.Oldest = time.UnixMicro(oldest)
	}
	return res, nil
}

func (b *RedisBackend) TakeTokens(ctx context.Context, key string, capacity, refillPerSec, cost float64, now time.Time) (BucketState, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	ttl := int64(capacity/refillPerSec) + 60

	raw, err := b.tbScript.Run(ctx, b.client, []string{key},
		capacity,
		refillPerSec,
		float64(now.UnixMicro())/1e6,
		cost,
		ttl,
	).Result()
	if err != nil {
		return BucketState{}, unavailable(err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return BucketState{}, unavailable(fmt.Errorf("unexpected script reply %v", raw))
	}

	return BucketState{
		Allowed:    asInt64(values[0]) == 1,
		Tokens:     asFloat64(values[1]),
		RetryAfter: time.Duration(asFloat64(values[2]) * float64(time.Second)),
	}, nil
}

func (b *RedisBackend) Reset(ctx context.Context, key string) (bool, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	removed, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return removed > 0, nil
}

func asInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func asFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
