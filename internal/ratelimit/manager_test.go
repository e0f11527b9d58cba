package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
)

// brokenBackend fails every primitive, standing in for an unreachable store.
type brokenBackend struct {
	err error
}

func (b *brokenBackend) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return 0, b.err
}
func (b *brokenBackend) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, b.err
}
func (b *brokenBackend) Get(ctx context.Context, key string) (int64, error) { return 0, b.err }
func (b *brokenBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.err
}
func (b *brokenBackend) TakeLog(ctx context.Context, key string, now time.Time, window time.Duration, limit, cost int64) (LogResult, error) {
	return LogResult{}, b.err
}
func (b *brokenBackend) TakeTokens(ctx context.Context, key string, capacity, refillPerSec, cost float64, now time.Time) (BucketState, error) {
	return BucketState{}, b.err
}
func (b *brokenBackend) Reset(ctx context.Context, key string) (bool, error) { return false, b.err }

func limitedKey(limit int64, period apikey.RateLimitPeriod) *apikey.APIKey {
	return &apikey.APIKey{
		KeyID:           "ak_test_key",
		Status:          apikey.StatusActive,
		RateLimit:       &limit,
		RateLimitPeriod: period,
	}
}

func unlimitedKey() *apikey.APIKey {
	return &apikey.APIKey{KeyID: "ak_test_key", Status: apikey.StatusActive}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	algo, err := NewAlgorithm(AlgorithmFixedWindow, NewMemoryBackend())
	require.NoError(t, err)
	return NewManager(algo, cfg, zap.NewNop())
}

func TestManagerPerKeyLayer(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{})
	key := limitedKey(2, apikey.PeriodMinute)

	for i := 0; i < 2; i++ {
		res, err := m.Check(ctx, key, "/api/v1/portal/data", 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, LayerPerKey, res.Layer)
	}

	res, err := m.Check(ctx, key, "/api/v1/portal/data", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LayerPerKey, res.Layer)
	assert.Equal(t, int64(2), res.Decision.Limit)
}

func TestManagerUnlimitedKeyNoLayers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{})

	res, err := m.Check(ctx, unlimitedKey(), "/anything", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Decision.Unlimited)
	assert.Empty(t, res.Decision.Headers())
}

func TestManagerGlobalLayer(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{GlobalLimit: 1, GlobalWindow: time.Minute})

	res, err := m.Check(ctx, unlimitedKey(), "/anything", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, res.Decision.Unlimited, "global decision carried for unlimited keys")

	// a different key shares the global counter
	other := &apikey.APIKey{KeyID: "ak_other_key", Status: apikey.StatusActive}
	res, err = m.Check(ctx, other, "/anything", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LayerGlobal, res.Layer)
}

func TestManagerEndpointLayerFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{
		Endpoints: []EndpointRule{
			{Prefix: "/api/v1/portal", Limit: 1, Window: time.Minute},
			{Prefix: "/api", Limit: 100, Window: time.Minute},
		},
	})

	res, err := m.Check(ctx, unlimitedKey(), "/api/v1/portal/me", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = m.Check(ctx, unlimitedKey(), "/api/v1/portal/me", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LayerEndpoint, res.Layer)
	assert.Equal(t, int64(1), res.Decision.Limit, "the first matching prefix rule applies")

	// a path matching only the broader rule is unaffected
	res, err = m.Check(ctx, unlimitedKey(), "/api/other", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestManagerPerKeyStaysChargedOnEndpointDenial(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{
		Endpoints: []EndpointRule{{Prefix: "/export", Limit: 1, Window: time.Minute}},
	})
	key := limitedKey(5, apikey.PeriodMinute)

	res, err := m.Check(ctx, key, "/export", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, int64(4), res.Decision.Remaining)

	res, err = m.Check(ctx, key, "/export", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, LayerEndpoint, res.Layer)

	// the zero-cost peek shows the endpoint-denied request still spent
	// per-key quota, so a shared-ceiling rejection is never free
	res, err = m.Check(ctx, key, "/export", 0)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, LayerPerKey, res.Layer)
	assert.Equal(t, int64(3), res.Decision.Remaining)
}

func TestManagerPerKeyDenialShortCircuits(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{GlobalLimit: 100, GlobalWindow: time.Minute})
	key := limitedKey(1, apikey.PeriodMinute)

	res, err := m.Check(ctx, key, "/anything", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = m.Check(ctx, key, "/anything", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LayerPerKey, res.Layer)

	// the denied request must not have spent global quota
	res, err = m.Check(ctx, unlimitedKey(), "/anything", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(98), res.Decision.Remaining)
}

func TestManagerFailClosed(t *testing.T) {
	ctx := context.Background()
	algo := NewFixedWindow(&brokenBackend{err: errors.New("connection refused")})
	m := NewManager(algo, ManagerConfig{GlobalLimit: 10, GlobalWindow: time.Minute}, zap.NewNop())

	_, err := m.Check(ctx, unlimitedKey(), "/anything", 1)
	assert.ErrorIs(t, err, ierr.ErrRateLimitUnavailable)
}

func TestManagerFailOpen(t *testing.T) {
	ctx := context.Background()
	algo := NewFixedWindow(&brokenBackend{err: errors.New("connection refused")})
	m := NewManager(algo, ManagerConfig{GlobalLimit: 10, GlobalWindow: time.Minute, FailOpen: true}, zap.NewNop())

	res, err := m.Check(ctx, unlimitedKey(), "/anything", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Decision.Unlimited)
}

func TestManagerValidationBypassesFailPolicy(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{GlobalLimit: 10, GlobalWindow: time.Minute, FailOpen: true})

	_, err := m.Check(ctx, unlimitedKey(), "/anything", -1)
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestManagerResetKey(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ManagerConfig{})
	key := limitedKey(1, apikey.PeriodMinute)

	res, err := m.Check(ctx, key, "/anything", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	existed, err := m.ResetKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)

	res, err = m.Check(ctx, key, "/anything", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "quota restored after reset")
}
