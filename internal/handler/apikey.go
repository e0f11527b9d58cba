package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/dto"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ratelimit"
	"github.com/nbalawat/api-dev-portal-sub001/internal/service"
)

type APIKeyHandler struct {
	service   *service.APIKeyService
	lifecycle *service.LifecycleService
	limits    *ratelimit.Manager
	logger    *zap.Logger
}

func NewAPIKeyHandler(service *service.APIKeyService, lifecycle *service.LifecycleService, limits *ratelimit.Manager, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service:   service,
		lifecycle: lifecycle,
		limits:    limits,
		logger:    logger.Named("APIKeyHandler"),
	}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create api key")
	var req dto.CreateAPIKeyRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		_ = c.Error(err)
		return
	}

	created, err := h.service.CreateAPIKey(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Service failed to create api key", zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key created via handler", zap.String("key_id", created.KeyID))
	c.JSON(http.StatusCreated, created)
}

func (h *APIKeyHandler) List(c *gin.Context) {
	var req dto.ListAPIKeysRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind or validate query parameters", zap.Error(err))
		_ = c.Error(err)
		return
	}

	resp, err := h.service.ListAPIKeys(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Service failed to list api keys", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format received", zap.String("id_param", idStr), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid API key ID format",
		})
		return
	}

	if err := h.service.RevokeAPIKey(c.Request.Context(), id); err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			c.JSON(http.StatusNotFound, dto.APIErrorResponse{
				Code:    "NOT_FOUND",
				Message: "API key not found",
			})
			return
		}
		h.logger.Error("Service failed to revoke api key", zap.String("id", idStr), zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *APIKeyHandler) Rotate(c *gin.Context) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format received", zap.String("id_param", idStr), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid API key ID format",
		})
		return
	}

	var req dto.RotateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate rotation request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	result := h.lifecycle.RotateKey(c.Request.Context(), id, service.RotationTrigger(req.Trigger))

	resp := dto.RotateAPIKeyResponse{
		Success:    result.Success,
		Message:    result.Message,
		GraceUntil: result.GraceUntil,
		Errors:     result.Errors,
	}
	if result.NewKey != nil {
		resp.NewKey = dto.NewAPIKeyResponse(result.NewKey)
		resp.FullKey = result.PlainSecret
	}

	if !result.Success {
		status := http.StatusInternalServerError
		if result.Message == "api key not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, resp)
		return
	}

	h.logger.Info("API key rotated via handler",
		zap.String("id", idStr),
		zap.String("trigger", req.Trigger),
	)
	c.JSON(http.StatusOK, resp)
}

// ResetRateLimit clears the key's counter state, e.g. after an operator
// raises its limit.
func (h *APIKeyHandler) ResetRateLimit(c *gin.Context) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format received", zap.String("id_param", idStr), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid API key ID format",
		})
		return
	}

	key, err := h.service.GetAPIKey(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			c.JSON(http.StatusNotFound, dto.APIErrorResponse{
				Code:    "NOT_FOUND",
				Message: "API key not found",
			})
			return
		}
		_ = c.Error(err)
		return
	}

	cleared, err := h.limits.ResetKey(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to reset rate limit state", zap.String("key_id", key.KeyID), zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Info("Rate limit state reset", zap.String("key_id", key.KeyID), zap.Bool("cleared", cleared))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}
