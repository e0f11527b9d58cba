package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
)

// Layer discriminates which admission layer produced a decision, so clients
// can be told precisely which ceiling they hit.
type Layer string

const (
	LayerPerKey   Layer = "per_key"
	LayerGlobal   Layer = "global"
	LayerEndpoint Layer = "endpoint"
)

// EndpointRule limits all keys hitting a path prefix collectively. Rules are
// evaluated in declaration order and the first matching prefix wins.
type EndpointRule struct {
	Prefix string
	Limit  int64
	Window time.Duration
}

type ManagerConfig struct {
	// GlobalLimit caps admissions across every key; 0 disables the layer.
	GlobalLimit  int64
	GlobalWindow time.Duration
	Endpoints    []EndpointRule
	// FailOpen admits requests when the backend is unreachable. The default
	// is to deny: erring toward permissiveness invites abuse.
	FailOpen bool
}

// Result is the combined outcome of the layered check. Layer names the layer
// whose decision is carried: on rejection the rejecting layer, on admission
// the per-key layer (or the tightest configured one for unlimited keys).
type Result struct {
	Allowed  bool
	Layer    Layer
	Decision Decision
}

// Manager translates a request context into checks against the three
// admission layers. All three must pass.
type Manager struct {
	algo   Algorithm
	cfg    ManagerConfig
	logger *zap.Logger
}

func NewManager(algo Algorithm, cfg ManagerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		algo:   algo,
		cfg:    cfg,
		logger: logger.Named("RateLimitManager"),
	}
}

func perKeyKey(keyID string) string    { return "rl:key:" + keyID }
func globalKey() string                { return "rl:global" }
func endpointKey(prefix string) string { return "rl:endpoint:" + prefix }

func (m *Manager) matchEndpoint(path string) *EndpointRule {
	for i := range m.cfg.Endpoints {
		if strings.HasPrefix(path, m.cfg.Endpoints[i].Prefix) {
			return &m.cfg.Endpoints[i]
		}
	}
	return nil
}

// Check runs the per-key, global and endpoint layers in order with the
// caller-supplied cost. The first rejection wins; backend failures follow the
// configured fail policy. Layers charged before a later layer rejects stay
// charged: the rejected request still consumed per-key quota, so hitting a
// shared ceiling is never free for the key that hit it.
func (m *Manager) Check(ctx context.Context, key *apikey.APIKey, endpoint string, cost int64) (Result, error) {
	perKey := unlimitedDecision()

	if key.RateLimit != nil && *key.RateLimit > 0 && key.RateLimitPeriod.IsValid() {
		dec, err := m.checkLayer(ctx, LayerPerKey, perKeyKey(key.KeyID), *key.RateLimit, key.RateLimitPeriod.Duration(), cost)
		if err != nil {
			return Result{}, err
		}
		if !dec.Allowed {
			return Result{Allowed: false, Layer: LayerPerKey, Decision: dec}, nil
		}
		perKey = dec
	}

	if m.cfg.GlobalLimit > 0 {
		dec, err := m.checkLayer(ctx, LayerGlobal, globalKey(), m.cfg.GlobalLimit, m.cfg.GlobalWindow, cost)
		if err != nil {
			return Result{}, err
		}
		if !dec.Allowed {
			return Result{Allowed: false, Layer: LayerGlobal, Decision: dec}, nil
		}
		if perKey.Unlimited {
			perKey = dec
		}
	}

	if rule := m.matchEndpoint(endpoint); rule != nil {
		dec, err := m.checkLayer(ctx, LayerEndpoint, endpointKey(rule.Prefix), rule.Limit, rule.Window, cost)
		if err != nil {
			return Result{}, err
		}
		if !dec.Allowed {
			return Result{Allowed: false, Layer: LayerEndpoint, Decision: dec}, nil
		}
		if perKey.Unlimited {
			perKey = dec
		}
	}

	return Result{Allowed: true, Layer: LayerPerKey, Decision: perKey}, nil
}

func (m *Manager) checkLayer(ctx context.Context, layer Layer, key string, limit int64, window time.Duration, cost int64) (Decision, error) {
	dec, err := m.algo.Check(ctx, key, limit, window, cost)
	if err == nil {
		return dec, nil
	}
	if errors.Is(err, ierr.ErrValidation) {
		return Decision{}, err
	}
	if m.cfg.FailOpen {
		m.logger.Warn("Rate limit backend failed, admitting per fail-open policy",
			zap.String("layer", string(layer)),
			zap.String("key", key),
			zap.Error(err),
		)
		return unlimitedDecision(), nil
	}
	m.logger.Error("Rate limit backend failed, denying per fail-closed policy",
		zap.String("layer", string(layer)),
		zap.String("key", key),
		zap.Error(err),
	)
	if errors.Is(err, ierr.ErrRateLimitUnavailable) {
		return Decision{}, err
	}
	return Decision{}, unavailable(err)
}

// ResetKey clears the per-key counter state, e.g. after a manual limit change.
func (m *Manager) ResetKey(ctx context.Context, key *apikey.APIKey) (bool, error) {
	window := key.RateLimitPeriod.Duration()
	if window == 0 {
		window = time.Minute
	}
	return m.algo.Reset(ctx, perKeyKey(key.KeyID), window)
}

// Algorithm exposes the configured algorithm name for response headers.
func (m *Manager) Algorithm() string {
	return m.algo.Name()
}
