package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is the reachability probe a backing store exposes. pgxpool.Pool
// satisfies it directly; the redis client is adapted with PingerFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports the admission pipeline's dependencies: the key record
// store and the rate limit counter store. A nil counters pinger means the
// counter store lives in process and has nothing to probe.
type HealthHandler struct {
	records   Pinger
	counters  Pinger
	backend   string
	algorithm string
	logger    *zap.Logger
}

func NewHealthHandler(records, counters Pinger, backend, algorithm string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		records:   records,
		counters:  counters,
		backend:   backend,
		algorithm: algorithm,
		logger:    logger,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	healthy := true

	recordsStatus := "ok"
	if err := h.records.Ping(c.Request.Context()); err != nil {
		recordsStatus = "error"
		healthy = false
		h.logger.Error("Health check: key record store ping failed", zap.Error(err))
	}

	countersStatus := "in-process"
	if h.counters != nil {
		countersStatus = "ok"
		if err := h.counters.Ping(c.Request.Context()); err != nil {
			countersStatus = "error"
			healthy = false
			h.logger.Error("Health check: rate limit counter store ping failed", zap.Error(err))
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"rate_limiter": gin.H{
			"backend":   h.backend,
			"algorithm": h.algorithm,
		},
		"dependencies": gin.H{
			"key_records":      recordsStatus,
			"rate_limit_store": countersStatus,
		},
	})
}
