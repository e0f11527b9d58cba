package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlidingWindow(clock *fakeClock) *SlidingWindow {
	sw := NewSlidingWindow(newTestBackend(clock))
	sw.now = clock.Now
	return sw
}

func TestSlidingWindowAdmitThenDeny(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sw := newTestSlidingWindow(clock)
	window := 10 * time.Second

	for i := 0; i < 2; i++ {
		dec, err := sw.Check(ctx, "k", 2, window, 1)
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
	}

	dec, err := sw.Check(ctx, "k", 2, window, 1)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)
	// the oldest recorded entry leaves the window in ten seconds
	assert.Equal(t, clock.Now().Add(window), dec.ResetTime)
}

func TestSlidingWindowTrailsTheInstant(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sw := newTestSlidingWindow(clock)
	window := 10 * time.Second

	dec, err := sw.Check(ctx, "k", 1, window, 1)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	// just inside the window the entry still counts
	clock.Advance(window - time.Millisecond)
	dec, err = sw.Check(ctx, "k", 1, window, 1)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	// just past it the entry has aged out
	clock.Advance(2 * time.Millisecond)
	dec, err = sw.Check(ctx, "k", 1, window, 1)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestSlidingWindowEmptyResetTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sw := newTestSlidingWindow(clock)
	window := 10 * time.Second

	// a pure peek of an empty log reports now + window
	dec, err := sw.Check(ctx, "k", 1, window, 0)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, clock.Now().Add(window), dec.ResetTime)
}

func TestSlidingLogVariableCosts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sl := NewSlidingLog(newTestBackend(clock))
	sl.now = clock.Now
	window := 10 * time.Second

	dec, err := sl.Check(ctx, "k", 5, window, 3)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(2), dec.Remaining)

	// a cost-3 request does not fit in the remaining 2
	dec, err = sl.Check(ctx, "k", 5, window, 3)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(2), dec.Remaining, "denied cost must not be charged")

	dec, err = sl.Check(ctx, "k", 5, window, 2)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)
}

func TestSlidingWindowZeroCostNeverRejects(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sw := newTestSlidingWindow(clock)
	window := 10 * time.Second

	for i := 0; i < 2; i++ {
		_, err := sw.Check(ctx, "k", 2, window, 1)
		require.NoError(t, err)
	}

	dec, err := sw.Check(ctx, "k", 2, window, 0)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)

	// the peek must not have appended an entry
	clock.Advance(window + time.Millisecond)
	dec, err = sw.Check(ctx, "k", 2, window, 2)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}
