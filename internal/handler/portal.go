package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/dto"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/middleware"
	"github.com/nbalawat/api-dev-portal-sub001/internal/permission"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ratelimit"
)

// PortalHandler serves the routes callers hit with their API key.
type PortalHandler struct {
	limits *ratelimit.Manager
	logger *zap.Logger
}

func NewPortalHandler(limits *ratelimit.Manager, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{
		limits: limits,
		logger: logger.Named("PortalHandler"),
	}
}

// Me returns the authenticated key's own record and effective permissions.
func (h *PortalHandler) Me(c *gin.Context) {
	record := middleware.GetAPIKey(c)
	if record == nil {
		c.JSON(http.StatusUnauthorized, dto.APIErrorResponse{
			Code:    "UNAUTHENTICATED",
			Message: "API key required",
		})
		return
	}

	c.JSON(http.StatusOK, dto.MeResponse{
		KeyID:                record.KeyID,
		Name:                 record.Name,
		Scopes:               record.Scopes,
		EffectivePermissions: permission.EffectivePermissions(record.Scopes),
		ExpiresAt:            record.ExpiresAt,
		RateLimit:            record.RateLimit,
		RateLimitPeriod:      string(record.RateLimitPeriod),
	})
}

// Usage reports the key's current rate limit standing without spending quota.
// A zero-cost check peeks at counter state and never rejects.
func (h *PortalHandler) Usage(c *gin.Context) {
	record := middleware.GetAPIKey(c)
	if record == nil {
		c.JSON(http.StatusUnauthorized, dto.APIErrorResponse{
			Code:    "UNAUTHENTICATED",
			Message: "API key required",
		})
		return
	}

	result, err := h.limits.Check(c.Request.Context(), record, c.Request.URL.Path, 0)
	if err != nil {
		h.logger.Error("Failed to peek rate limit state", zap.String("key_id", record.KeyID), zap.Error(err))
		_ = c.Error(err)
		return
	}

	if result.Decision.Unlimited {
		c.JSON(http.StatusOK, gin.H{"limited": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limited":   true,
		"layer":     string(result.Layer),
		"limit":     result.Decision.Limit,
		"remaining": result.Decision.Remaining,
		"reset":     result.Decision.ResetTime.Unix(),
		"window":    int64(result.Decision.Window.Seconds()),
		"algorithm": result.Decision.Algorithm,
	})
}
