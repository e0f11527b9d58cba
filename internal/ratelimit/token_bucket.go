package ratelimit

import (
	"context"
	"time"
)

// TokenBucket models the limit as a pool of limit tokens refilling at
// limit/window tokens per second. Bursts up to the full capacity are allowed;
// a request that cannot afford its cost is rejected without partial
// consumption.
type TokenBucket struct {
	backend Backend
	now     func() time.Time
}

func NewTokenBucket(backend Backend) *TokenBucket {
	return &TokenBucket{backend: backend, now: time.Now}
}

func (t *TokenBucket) Name() string { return AlgorithmTokenBucket }

func (t *TokenBucket) Check(ctx context.Context, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	if err := validateCheckArgs(key, limit, window, cost); err != nil {
		return Decision{}, err
	}

	now := t.now()
	capacity := float64(limit)
	rate := capacity / window.Seconds()

	st, err := t.backend.TakeTokens(ctx, key, capacity, rate, float64(cost), now)
	if err != nil {
		return Decision{}, err
	}

	// time until the bucket is back at capacity
	refillAll := time.Duration((capacity - st.Tokens) / rate * float64(time.Second))

	dec := Decision{
		Allowed:    st.Allowed,
		Limit:      limit,
		Remaining:  clampRemaining(int64(st.Tokens)),
		ResetTime:  now.Add(refillAll),
		RetryAfter: st.RetryAfter,
		Window:     window,
		Algorithm:  t.Name(),
	}
	return dec, nil
}

func (t *TokenBucket) Reset(ctx context.Context, key string, _ time.Duration) (bool, error) {
	return t.backend.Reset(ctx, key)
}
