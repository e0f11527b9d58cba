package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/service"
)

type LifecycleHandler struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

func NewLifecycleHandler(lifecycle *service.LifecycleService, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		lifecycle: lifecycle,
		logger:    logger.Named("LifecycleHandler"),
	}
}

func (h *LifecycleHandler) ProcessExpireTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeKeyExpire {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p ExpireKeysPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for key expiry task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	h.logger.Info("Processing key expiry sweep task...")

	result, err := h.lifecycle.ExpireDueKeys(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}
	if len(result.Errors) > 0 {
		h.logger.Warn("Key expiry sweep finished with per-key errors",
			zap.Int("expired", result.Expired),
			zap.Strings("errors", result.Errors),
		)
	}
	return nil
}

func (h *LifecycleHandler) ProcessExpiryWarnTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeKeyExpiryWarn {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p ExpiryWarnPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for expiry warning task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	h.logger.Info("Processing expiry warning task...")

	if _, err := h.lifecycle.NotifyExpiring(ctx); err != nil {
		return fmt.Errorf("expiry warning pass failed: %w", err)
	}
	return nil
}
