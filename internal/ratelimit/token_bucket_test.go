package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenBucket(clock *fakeClock) *TokenBucket {
	tb := NewTokenBucket(newTestBackend(clock))
	tb.now = clock.Now
	return tb
}

func TestTokenBucketExhaustAndRefill(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tb := newTestTokenBucket(clock)

	// capacity 5, refill 5/10s = 0.5 tokens per second
	window := 10 * time.Second

	for i := 0; i < 5; i++ {
		dec, err := tb.Check(ctx, "k", 5, window, 1)
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "burst up to capacity")
	}

	dec, err := tb.Check(ctx, "k", 5, window, 1)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)
	// one token costs two seconds at this rate
	assert.InDelta(t, 2.0, dec.RetryAfter.Seconds(), 0.05)

	clock.Advance(2 * time.Second)
	dec, err = tb.Check(ctx, "k", 5, window, 1)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "refilled token should be spendable")
}

func TestTokenBucketRejectionConsumesNothing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tb := newTestTokenBucket(clock)
	window := 10 * time.Second

	dec, err := tb.Check(ctx, "k", 5, window, 3)
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	assert.Equal(t, int64(2), dec.Remaining)

	dec, err = tb.Check(ctx, "k", 5, window, 3)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(2), dec.Remaining, "a rejected request leaves the bucket untouched")

	dec, err = tb.Check(ctx, "k", 5, window, 2)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestTokenBucketCapacityClamp(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tb := newTestTokenBucket(clock)
	window := 10 * time.Second

	dec, err := tb.Check(ctx, "k", 5, window, 5)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	// a long idle period refills to capacity, never beyond
	clock.Advance(time.Hour)
	dec, err = tb.Check(ctx, "k", 5, window, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), dec.Remaining)

	dec, err = tb.Check(ctx, "k", 5, window, 6)
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "cost above capacity can never be admitted")
}

func TestTokenBucketZeroCostPeek(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tb := newTestTokenBucket(clock)
	window := 10 * time.Second

	dec, err := tb.Check(ctx, "k", 2, window, 2)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	for i := 0; i < 3; i++ {
		dec, err = tb.Check(ctx, "k", 2, window, 0)
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, int64(0), dec.Remaining)
	}
}

func TestTokenBucketReset(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tb := newTestTokenBucket(clock)
	window := 10 * time.Second

	dec, err := tb.Check(ctx, "k", 1, window, 1)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	existed, err := tb.Reset(ctx, "k", window)
	require.NoError(t, err)
	assert.True(t, existed)

	dec, err = tb.Check(ctx, "k", 1, window, 1)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "reset restores the full bucket")
}

func TestAlgorithmFactory(t *testing.T) {
	b := NewMemoryBackend()

	for _, name := range []string{
		AlgorithmFixedWindow,
		AlgorithmSlidingWindow,
		AlgorithmSlidingLog,
		AlgorithmTokenBucket,
	} {
		algo, err := NewAlgorithm(name, b)
		require.NoError(t, err)
		assert.Equal(t, name, algo.Name())
	}

	_, err := NewAlgorithm("leaky_bucket", b)
	assert.Error(t, err)
}
