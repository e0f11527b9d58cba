package ratelimit

import (
	"context"
	"time"
)

// SlidingLog is the precise variant of SlidingWindow: each admitted request
// is recorded as a {timestamp, cost} entry and the window total is the sum of
// costs, so a bulk request weighs exactly its declared cost against the limit.
type SlidingLog struct {
	backend Backend
	now     func() time.Time
}

func NewSlidingLog(backend Backend) *SlidingLog {
	return &SlidingLog{backend: backend, now: time.Now}
}

func (s *SlidingLog) Name() string { return AlgorithmSlidingLog }

func (s *SlidingLog) Check(ctx context.Context, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	return logCheck(ctx, s.backend, s.now, s.Name(), key, limit, window, cost)
}

func (s *SlidingLog) Reset(ctx context.Context, key string, _ time.Duration) (bool, error) {
	return s.backend.Reset(ctx, key)
}
