package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/metrics"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 30 * time.Second
)

// Request is the per-request input extracted by the HTTP layer.
type Request struct {
	PresentedSecret string
	SourceIP        string
	Path            string
}

// Gate is the single entry point for validating a presented credential. Every
// branch, success or failure, emits an activity event; the decision itself
// never depends on whether that event could be recorded.
//
// Validated records are cached for a short TTL, so a revocation can take up
// to the TTL to propagate. The cache also keeps authentication working
// through brief record-store outages.
type Gate struct {
	repo     apikey.Repository
	keys     *keymaterial.Manager
	recorder activity.Recorder
	metrics  *metrics.Admission
	cache    *expirable.LRU[string, *apikey.APIKey]
	logger   *zap.Logger
	now      func() time.Time
}

type GateOption func(*gateConfig)

type gateConfig struct {
	cacheSize int
	cacheTTL  time.Duration
	metrics   *metrics.Admission
}

func WithCache(size int, ttl time.Duration) GateOption {
	return func(c *gateConfig) {
		if size > 0 {
			c.cacheSize = size
		}
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Admission) GateOption {
	return func(c *gateConfig) { c.metrics = m }
}

func NewGate(repo apikey.Repository, keys *keymaterial.Manager, recorder activity.Recorder, logger *zap.Logger, opts ...GateOption) *Gate {
	cfg := gateConfig{cacheSize: defaultCacheSize, cacheTTL: defaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Gate{
		repo:     repo,
		keys:     keys,
		recorder: recorder,
		metrics:  cfg.metrics,
		cache:    expirable.NewLRU[string, *apikey.APIKey](cfg.cacheSize, nil, cfg.cacheTTL),
		logger:   logger.Named("AuthGate"),
		now:      time.Now,
	}
}

// Authenticate validates the presented credential and returns the key record
// for the rate limit and permission stages. Wrong secrets and unknown key ids
// are reported identically as ErrAPIKeyNotFound so callers cannot probe which
// key ids exist.
func (g *Gate) Authenticate(ctx context.Context, req Request) (*apikey.APIKey, error) {
	keyID, secret, ok := keymaterial.SplitPresented(req.PresentedSecret)
	if !ok {
		g.reject(ctx, req, "", "malformed_credential", http.StatusUnauthorized, activity.SeverityMedium)
		return nil, ierr.ErrAPIKeyNotFound
	}

	record, err := g.lookup(ctx, keyID)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			g.reject(ctx, req, keyID, "key_not_found", http.StatusUnauthorized, activity.SeverityMedium)
			return nil, ierr.ErrAPIKeyNotFound
		}
		g.reject(ctx, req, keyID, "store_error", http.StatusInternalServerError, activity.SeverityHigh)
		return nil, fmt.Errorf("%w: key record lookup failed: %v", ierr.ErrInternalServer, err)
	}

	if !g.keys.Verify(secret, record.SecretHash) {
		// indistinguishable from an unknown key id in the response; the
		// activity log keeps the real reason
		g.reject(ctx, req, keyID, "secret_mismatch", http.StatusUnauthorized, activity.SeverityHigh)
		return nil, ierr.ErrAPIKeyNotFound
	}

	now := g.now()
	inGrace := record.InRotationGrace(now)

	// stored status decides first; a revoked key stays revoked even after
	// its expiry timestamp passes
	switch record.Status {
	case apikey.StatusActive:
	case apikey.StatusSuspended:
		if !inGrace {
			// a lapsed grace window reads as expiry of the retiring credential
			if record.IsExpired(now) {
				g.reject(ctx, req, keyID, "expired", http.StatusUnauthorized, activity.SeverityMedium)
				return nil, ierr.ErrAPIKeyExpired
			}
			g.reject(ctx, req, keyID, "suspended", http.StatusForbidden, activity.SeverityMedium)
			return nil, ierr.ErrAPIKeySuspended
		}
	case apikey.StatusRevoked:
		g.reject(ctx, req, keyID, "revoked", http.StatusForbidden, activity.SeverityHigh)
		return nil, ierr.ErrAPIKeyRevoked
	case apikey.StatusExpired:
		g.reject(ctx, req, keyID, "expired", http.StatusUnauthorized, activity.SeverityMedium)
		return nil, ierr.ErrAPIKeyExpired
	default:
		g.reject(ctx, req, keyID, "unknown_status", http.StatusForbidden, activity.SeverityHigh)
		return nil, ierr.ErrAPIKeyNotFound
	}

	// expiry is time-derived, not trusted to the stored status
	if record.IsExpired(now) {
		g.reject(ctx, req, keyID, "expired", http.StatusUnauthorized, activity.SeverityMedium)
		if record.Status == apikey.StatusActive {
			g.flipStatusAsync(record.ID, keyID, apikey.StatusExpired)
		}
		return nil, ierr.ErrAPIKeyExpired
	}

	if !record.IPAllowed(req.SourceIP) {
		g.reject(ctx, req, keyID, "ip_not_allowed", http.StatusForbidden, activity.SeverityHigh)
		return nil, ierr.ErrIPNotAllowed
	}

	ev := activity.NewEvent(activity.TypeAuthSuccess, activity.SeverityLow)
	ev.KeyID = keyID
	ev.UserID = record.UserID.String()
	ev.SourceIP = req.SourceIP
	ev.Endpoint = req.Path
	ev.StatusCode = http.StatusOK
	if inGrace {
		ev.Details = map[string]any{"deprecated": true, "reason": "rotation_grace"}
	}
	g.recorder.Record(ctx, ev)

	if g.metrics != nil {
		g.metrics.AuthAttempts.WithLabelValues("success", "").Inc()
	}

	g.updateLastUsedAsync(record.ID)

	return record, nil
}

func (g *Gate) lookup(ctx context.Context, keyID string) (*apikey.APIKey, error) {
	if record, ok := g.cache.Get(keyID); ok {
		if g.metrics != nil {
			g.metrics.CacheHits.Inc()
		}
		return record, nil
	}
	if g.metrics != nil {
		g.metrics.CacheMisses.Inc()
	}

	record, err := g.repo.GetByKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	g.cache.Add(keyID, record)
	return record, nil
}

func (g *Gate) reject(ctx context.Context, req Request, keyID, reason string, statusCode int, severity activity.Severity) {
	ev := activity.NewEvent(activity.TypeAuthFailure, severity)
	ev.KeyID = keyID
	ev.SourceIP = req.SourceIP
	ev.Endpoint = req.Path
	ev.StatusCode = statusCode
	ev.Details = map[string]any{"reason": reason}
	g.recorder.Record(ctx, ev)

	if g.metrics != nil {
		g.metrics.AuthAttempts.WithLabelValues("failure", reason).Inc()
	}
}

func (g *Gate) flipStatusAsync(id uuid.UUID, keyID string, status apikey.Status) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.repo.UpdateStatus(ctx, id, status); err != nil {
			g.logger.Error("Failed to update api key status asynchronously",
				zap.String("id", id.String()),
				zap.String("status", string(status)),
				zap.Error(err),
			)
			return
		}
		g.cache.Remove(keyID)
	}()
}

func (g *Gate) updateLastUsedAsync(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.repo.UpdateLastUsed(ctx, id, time.Now().UTC()); err != nil {
			g.logger.Error("Failed to update api key last used time asynchronously",
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
	}()
}
