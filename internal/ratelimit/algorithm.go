package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
)

const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmSlidingLog    = "sliding_log"
	AlgorithmTokenBucket   = "token_bucket"
)

// Algorithm is one admission-decision strategy over a shared Backend.
// Implementations must be safe for concurrent use on the same key: the
// Backend's per-key atomicity is the only synchronization they rely on.
type Algorithm interface {
	Name() string
	// Check admits or rejects a request of the given cost. cost 0 is a
	// status-only peek: it never rejects and never consumes quota.
	Check(ctx context.Context, key string, limit int64, window time.Duration, cost int64) (Decision, error)
	// Reset clears recorded state for key, reporting whether any existed.
	// The window identifies the live fixed-window counter; the other
	// algorithms keep state under the bare key and ignore it.
	Reset(ctx context.Context, key string, window time.Duration) (bool, error)
}

// NewAlgorithm selects an algorithm by configured name. Selection happens
// once at construction time, not per request.
func NewAlgorithm(name string, backend Backend) (Algorithm, error) {
	switch name {
	case AlgorithmFixedWindow:
		return NewFixedWindow(backend), nil
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(backend), nil
	case AlgorithmSlidingLog:
		return NewSlidingLog(backend), nil
	case AlgorithmTokenBucket:
		return NewTokenBucket(backend), nil
	default:
		return nil, fmt.Errorf("%w: unknown rate limit algorithm %q", ierr.ErrValidation, name)
	}
}

func validateCheckArgs(key string, limit int64, window time.Duration, cost int64) error {
	if key == "" {
		return fmt.Errorf("%w: rate limit key must not be empty", ierr.ErrValidation)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ierr.ErrValidation)
	}
	if window < time.Second {
		return fmt.Errorf("%w: rate limit window must be at least one second", ierr.ErrValidation)
	}
	if cost < 0 {
		return fmt.Errorf("%w: request cost must not be negative", ierr.ErrValidation)
	}
	return nil
}
