package ratelimit

import (
	"math"
	"strconv"
	"time"
)

// Decision is the ephemeral outcome of a single rate limit check. Only its
// side effects on counter state persist.
type Decision struct {
	Allowed    bool
	Unlimited  bool
	Limit      int64
	Remaining  int64
	ResetTime  time.Time
	RetryAfter time.Duration
	Window     time.Duration
	Algorithm  string
}

// Headers renders the standard rate limit response headers. Retry-After is
// present only on denial. An unlimited decision carries no headers.
func (d Decision) Headers() map[string]string {
	if d.Unlimited {
		return map[string]string{}
	}
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(d.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(d.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetTime.Unix(), 10),
		"X-RateLimit-Window":    strconv.FormatInt(int64(d.Window/time.Second), 10),
		"X-RateLimit-Algorithm": d.Algorithm,
	}
	if !d.Allowed {
		h["Retry-After"] = strconv.FormatInt(retryAfterSeconds(d.RetryAfter), 10)
	}
	return h
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func clampRemaining(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func unlimitedDecision() Decision {
	return Decision{Allowed: true, Unlimited: true}
}
