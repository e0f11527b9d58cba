package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/auth"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/dto"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
	"github.com/nbalawat/api-dev-portal-sub001/internal/metrics"
	"github.com/nbalawat/api-dev-portal-sub001/internal/permission"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ratelimit"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyContextKey = "apiKeyRecord"
)

// costForMethod weights requests before they reach the rate limit layers.
// Reads spend one unit, mutations two.
func costForMethod(method string) int64 {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return 1
	default:
		return 2
	}
}

// AdmissionMiddleware runs the full pipeline for portal routes: credential
// validation, then the layered rate limit check. The validated key record is
// placed in the request context for handlers and for RequirePermission.
// Rate limit headers are written on allowed and denied responses alike.
func AdmissionMiddleware(gate *auth.Gate, limits *ratelimit.Manager, m *metrics.Admission, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AdmissionMiddleware")
	return func(c *gin.Context) {
		start := time.Now()
		if m != nil {
			// denied requests count toward the latency histogram too
			defer func() {
				m.AdmissionLatency.Observe(time.Since(start).Seconds())
			}()
		}

		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			log.Debug("API key header is missing", zap.String("header", apiKeyHeader))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.APIErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "API key required",
			})
			return
		}

		record, err := gate.Authenticate(c.Request.Context(), auth.Request{
			PresentedSecret: presented,
			SourceIP:        c.ClientIP(),
			Path:            c.Request.URL.Path,
		})
		if err != nil {
			status, code, msg := mapAuthError(err)
			c.AbortWithStatusJSON(status, dto.APIErrorResponse{Code: code, Message: msg})
			return
		}

		cost := costForMethod(c.Request.Method)
		result, err := limits.Check(c.Request.Context(), record, c.Request.URL.Path, cost)
		if err != nil {
			if errors.Is(err, ierr.ErrRateLimitUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.APIErrorResponse{
					Code:    "RATE_LIMIT_UNAVAILABLE",
					Message: "Rate limiting temporarily unavailable",
				})
				return
			}
			log.Error("Rate limit check failed", zap.String("key_id", record.KeyID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.APIErrorResponse{
				Code:    "INTERNAL_ERROR",
				Message: "An unexpected error occurred.",
			})
			return
		}

		for name, value := range result.Decision.Headers() {
			c.Header(name, value)
		}

		if m != nil {
			outcome := "allowed"
			if !result.Allowed {
				outcome = "denied"
			}
			m.RateLimitDecisions.WithLabelValues(string(result.Layer), outcome, limits.Algorithm()).Inc()
		}

		if !result.Allowed {
			log.Info("Request rejected by rate limit",
				zap.String("key_id", record.KeyID),
				zap.String("layer", string(result.Layer)),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.APIErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "Rate limit exceeded",
				Details: dto.RateLimitDetails{
					Layer:      string(result.Layer),
					Limit:      result.Decision.Limit,
					Remaining:  result.Decision.Remaining,
					Reset:      result.Decision.ResetTime.Unix(),
					RetryAfter: int64(result.Decision.RetryAfter.Seconds()),
					Window:     int64(result.Decision.Window.Seconds()),
					Algorithm:  result.Decision.Algorithm,
				},
			})
			return
		}

		c.Set(apiKeyContextKey, record)
		c.Next()
	}
}

func mapAuthError(err error) (int, string, string) {
	switch {
	case errors.Is(err, ierr.ErrAPIKeyExpired):
		return http.StatusUnauthorized, "API_KEY_EXPIRED", "API key expired"
	case errors.Is(err, ierr.ErrAPIKeyRevoked):
		return http.StatusForbidden, "API_KEY_REVOKED", "API key revoked"
	case errors.Is(err, ierr.ErrAPIKeySuspended):
		return http.StatusForbidden, "API_KEY_SUSPENDED", "API key suspended"
	case errors.Is(err, ierr.ErrIPNotAllowed):
		return http.StatusForbidden, "IP_NOT_ALLOWED", "Source IP not allowed for this API key"
	case errors.Is(err, ierr.ErrAPIKeyNotFound):
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid API key"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred."
	}
}

// GetAPIKey returns the authenticated key record placed in the context by
// AdmissionMiddleware, or nil when the route is not behind it.
func GetAPIKey(c *gin.Context) *apikey.APIKey {
	value, exists := c.Get(apiKeyContextKey)
	if !exists {
		return nil
	}
	record, ok := value.(*apikey.APIKey)
	if !ok {
		return nil
	}
	return record
}

// RequirePermission gates a route on the authenticated key's scopes. It must
// run after AdmissionMiddleware. Denials are recorded in the activity log.
func RequirePermission(resource permission.Resource, perm permission.Permission, recorder activity.Recorder, m *metrics.Admission, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("RequirePermission")
	return func(c *gin.Context) {
		record := GetAPIKey(c)
		if record == nil {
			log.Error("Permission check reached without an authenticated key", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.APIErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "API key required",
			})
			return
		}

		allowed := permission.HasPermission(record.Scopes, resource, perm)

		if m != nil {
			outcome := "allowed"
			if !allowed {
				outcome = "denied"
			}
			m.PermissionChecks.WithLabelValues(string(resource), outcome).Inc()
		}

		if !allowed {
			ev := activity.NewEvent(activity.TypePermissionDenied, activity.SeverityMedium)
			ev.KeyID = record.KeyID
			ev.UserID = record.UserID.String()
			ev.SourceIP = c.ClientIP()
			ev.Endpoint = c.Request.URL.Path
			ev.StatusCode = http.StatusForbidden
			ev.Details = map[string]any{
				"resource":   string(resource),
				"permission": string(perm),
			}
			recorder.Record(c.Request.Context(), ev)

			c.AbortWithStatusJSON(http.StatusForbidden, dto.APIErrorResponse{
				Code:    "FORBIDDEN",
				Message: "Insufficient scope for this operation",
			})
			return
		}

		c.Next()
	}
}
