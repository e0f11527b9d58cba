package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultCleanupInterval = 5 * time.Minute

type memCounter struct {
	value     int64
	expiresAt time.Time
}

type memLogEntry struct {
	ts   time.Time
	cost int64
}

type memLog struct {
	entries   []memLogEntry
	expiresAt time.Time
}

type memBucket struct {
	tokens     float64
	lastRefill time.Time
	expiresAt  time.Time
}

// MemoryBackend is a process-local Backend guarded by a single mutex. State
// for idle keys is swept out amortized: at most once per cleanup interval,
// piggybacked on a regular call, so no background goroutine is needed.
type MemoryBackend struct {
	mu       sync.Mutex
	counters map[string]*memCounter
	logs     map[string]*memLog
	buckets  map[string]*memBucket

	cleanupInterval time.Duration
	lastCleanup     time.Time

	now func() time.Time
}

type MemoryOption func(*MemoryBackend)

func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(b *MemoryBackend) {
		if d > 0 {
			b.cleanupInterval = d
		}
	}
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		counters:        make(map[string]*memCounter),
		logs:            make(map[string]*memLog),
		buckets:         make(map[string]*memBucket),
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastCleanup = b.now()
	return b
}

var _ Backend = (*MemoryBackend)(nil)

// maybeCleanup sweeps expired entries. Callers must hold the mutex.
func (b *MemoryBackend) maybeCleanup(now time.Time) {
	if now.Sub(b.lastCleanup) < b.cleanupInterval {
		return
	}
	b.lastCleanup = now

	for key, c := range b.counters {
		if now.After(c.expiresAt) {
			delete(b.counters, key)
		}
	}
	for key, l := range b.logs {
		if now.After(l.expiresAt) {
			delete(b.logs, key)
		}
	}
	for key, bk := range b.buckets {
		if now.After(bk.expiresAt) {
			delete(b.buckets, key)
		}
	}
}

func (b *MemoryBackend) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.maybeCleanup(now)

	c, ok := b.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memCounter{value: 0, expiresAt: now.Add(ttl)}
		b.counters[key] = c
	}
	c.value += delta
	return c.value, nil
}

func (b *MemoryBackend) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.counters[key]
	if !ok || b.now().After(c.expiresAt) {
		return 0, nil
	}
	c.value -= delta
	if c.value < 0 {
		c.value = 0
	}
	return c.value, nil
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.counters[key]
	if !ok || b.now().After(c.expiresAt) {
		return 0, nil
	}
	return c.value, nil
}

func (b *MemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.counters[key]; ok {
		c.expiresAt = b.now().Add(ttl)
	}
	return nil
}

func (b *MemoryBackend) TakeLog(ctx context.Context, key string, now time.Time, window time.Duration, limit, cost int64) (LogResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCleanup(b.now())

	l, ok := b.logs[key]
	if !ok {
		l = &memLog{}
		b.logs[key] = l
	}

	cutoff := now.Add(-window)
	kept := l.entries[:0]
	var total int64
	for _, e := range l.entries {
		if e.ts.After(cutoff) {
			kept = append(kept, e)
			total += e.cost
		}
	}
	l.entries = kept

	res := LogResult{Total: total}
	if cost == 0 {
		res.Allowed = true
	} else if total+cost <= limit {
		l.entries = append(l.entries, memLogEntry{ts: now, cost: cost})
		res.Allowed = true
		res.Total = total + cost
	}

	if len(l.entries) > 0 {
		res.Oldest = l.entries[0].ts
		l.expiresAt = now.Add(2 * window)
	} else {
		delete(b.logs, key)
	}
	return res, nil
}

func (b *MemoryBackend) TakeTokens(ctx context.Context, key string, capacity, refillPerSec, cost float64, now time.Time) (BucketState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCleanup(b.now())

	bk, ok := b.buckets[key]
	if !ok {
		bk = &memBucket{tokens: capacity, lastRefill: now}
		b.buckets[key] = bk
	} else {
		elapsed := now.Sub(bk.lastRefill)
		if elapsed < 0 {
			elapsed = 0
		}
		bk.tokens += elapsed.Seconds() * refillPerSec
		if bk.tokens > capacity {
			bk.tokens = capacity
		}
		bk.lastRefill = now
	}

	st := BucketState{}
	switch {
	case cost == 0:
		st.Allowed = true
	case bk.tokens >= cost:
		bk.tokens -= cost
		st.Allowed = true
	default:
		missing := cost - bk.tokens
		st.RetryAfter = time.Duration(missing / refillPerSec * float64(time.Second))
	}
	st.Tokens = bk.tokens

	// keep the entry around long enough to refill completely
	ttl := time.Duration(capacity/refillPerSec*float64(time.Second)) + time.Minute
	bk.expiresAt = now.Add(ttl)

	return st, nil
}

func (b *MemoryBackend) Reset(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, hadCounter := b.counters[key]
	_, hadLog := b.logs[key]
	_, hadBucket := b.buckets[key]
	delete(b.counters, key)
	delete(b.logs, key)
	delete(b.buckets, key)
	return hadCounter || hadLog || hadBucket, nil
}
