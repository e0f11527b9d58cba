package ratelimit

import (
	"context"
	"time"
)

// LogResult is the outcome of a compare-and-append on a timestamp log.
type LogResult struct {
	// Allowed reports whether the entry was appended.
	Allowed bool
	// Total is the committed cost sum inside the window after the decision.
	Total int64
	// Oldest is the timestamp of the oldest surviving entry; zero when the
	// log is empty.
	Oldest time.Time
}

// BucketState is the outcome of a token bucket refill-and-consume.
type BucketState struct {
	Allowed bool
	// Tokens remaining after the decision (never negative, never above
	// capacity).
	Tokens float64
	// RetryAfter is how long until enough tokens accrue for the rejected
	// cost; zero when allowed.
	RetryAfter time.Duration
}

// Backend is the counter/token store shared by every algorithm. It holds no
// policy: each primitive must be atomic per key so concurrent callers never
// lose updates, but what the numbers mean is the algorithm's business.
type Backend interface {
	// Incr atomically adds delta to a counter, creating it with the given
	// ttl, and returns the new value.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Decr atomically subtracts delta from an existing counter.
	Decr(ctx context.Context, key string, delta int64) (int64, error)
	// Get reads a counter; missing keys read as zero.
	Get(ctx context.Context, key string) (int64, error)
	// Expire adjusts the ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TakeLog atomically prunes log entries older than now-window, sums the
	// surviving costs, and appends an entry of the given cost when the sum
	// plus cost fits within limit. cost 0 is a pure read.
	TakeLog(ctx context.Context, key string, now time.Time, window time.Duration, limit, cost int64) (LogResult, error)
	// TakeTokens atomically refills a token bucket to at most capacity at
	// refillPerSec and consumes cost tokens when available. cost 0 is a pure
	// read.
	TakeTokens(ctx context.Context, key string, capacity, refillPerSec, cost float64, now time.Time) (BucketState, error)
	// Reset removes all state for key, reporting whether any existed.
	Reset(ctx context.Context, key string) (bool, error)
}
