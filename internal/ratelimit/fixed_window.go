package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FixedWindow counts requests inside aligned windows of fixed width. The
// counter key carries the window index, so a new window starts from a fresh
// counter and the previous one ages out via its ttl.
//
// A rejected request does not consume quota: the increment that pushed the
// counter over the limit is rolled back, so a later request inside the same
// window can still be admitted.
type FixedWindow struct {
	backend Backend
	now     func() time.Time
}

func NewFixedWindow(backend Backend) *FixedWindow {
	return &FixedWindow{backend: backend, now: time.Now}
}

func (f *FixedWindow) Name() string { return AlgorithmFixedWindow }

func (f *FixedWindow) windowKey(key string, now time.Time, window time.Duration) (string, time.Time) {
	winSecs := int64(window / time.Second)
	idx := now.Unix() / winSecs
	boundary := time.Unix((idx+1)*winSecs, 0)
	return fmt.Sprintf("%s:%d", key, idx), boundary
}

func (f *FixedWindow) Check(ctx context.Context, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	if err := validateCheckArgs(key, limit, window, cost); err != nil {
		return Decision{}, err
	}

	now := f.now()
	wkey, boundary := f.windowKey(key, now, window)

	dec := Decision{
		Limit:     limit,
		Window:    window,
		ResetTime: boundary,
		Algorithm: f.Name(),
	}

	if cost == 0 {
		count, err := f.backend.Get(ctx, wkey)
		if err != nil {
			return Decision{}, err
		}
		dec.Allowed = true
		dec.Remaining = clampRemaining(limit - count)
		return dec, nil
	}

	// the extra window of ttl keeps the counter alive for checks that
	// straddle the boundary
	count, err := f.backend.Incr(ctx, wkey, cost, boundary.Sub(now)+window)
	if err != nil {
		return Decision{}, err
	}

	if count > limit {
		// roll the over-limit increment back; a failed rollback only makes
		// the window stricter, never more permissive
		_, _ = f.backend.Decr(ctx, wkey, cost)
		dec.Allowed = false
		dec.Remaining = clampRemaining(limit - (count - cost))
		dec.RetryAfter = boundary.Sub(now)
		return dec, nil
	}

	dec.Allowed = true
	dec.Remaining = clampRemaining(limit - count)
	return dec, nil
}

// Reset clears the current window's counter. Past windows age out on their
// own ttl.
func (f *FixedWindow) Reset(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window < time.Second {
		return false, nil
	}
	wkey, _ := f.windowKey(key, f.now(), window)
	return f.backend.Reset(ctx, wkey)
}
