package ratelimit

import (
	"context"
	"time"
)

// logCheck is the shared core of the two log-backed algorithms: prune aged
// entries, compare the surviving total against the limit, and append on
// admission. The Backend does all of this in one atomic step.
func logCheck(ctx context.Context, backend Backend, now func() time.Time, name, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	if err := validateCheckArgs(key, limit, window, cost); err != nil {
		return Decision{}, err
	}

	t := now()
	res, err := backend.TakeLog(ctx, key, t, window, limit, cost)
	if err != nil {
		return Decision{}, err
	}

	dec := Decision{
		Allowed:   res.Allowed,
		Limit:     limit,
		Remaining: clampRemaining(limit - res.Total),
		Window:    window,
		Algorithm: name,
	}
	if res.Oldest.IsZero() {
		dec.ResetTime = t.Add(window)
	} else {
		dec.ResetTime = res.Oldest.Add(window)
	}
	if !dec.Allowed {
		retry := dec.ResetTime.Sub(t)
		if retry < 0 {
			retry = 0
		}
		dec.RetryAfter = retry
	}
	return dec, nil
}

// SlidingWindow keeps the timestamps of admitted requests in the trailing
// window; a request is admitted while the recorded count plus its cost stays
// within the limit. Unlike FixedWindow there is no boundary burst: the window
// trails the current instant.
type SlidingWindow struct {
	backend Backend
	now     func() time.Time
}

func NewSlidingWindow(backend Backend) *SlidingWindow {
	return &SlidingWindow{backend: backend, now: time.Now}
}

func (s *SlidingWindow) Name() string { return AlgorithmSlidingWindow }

func (s *SlidingWindow) Check(ctx context.Context, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	return logCheck(ctx, s.backend, s.now, s.Name(), key, limit, window, cost)
}

func (s *SlidingWindow) Reset(ctx context.Context, key string, _ time.Duration) (bool, error) {
	return s.backend.Reset(ctx, key)
}
