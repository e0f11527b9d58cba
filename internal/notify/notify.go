package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
)

// Notifier is the outbound e-mail collaborator. Delivery mechanics live
// outside this service; the lifecycle manager only hands over the facts.
type Notifier interface {
	KeyExpiring(ctx context.Context, key *apikey.APIKey, expiresAt time.Time) error
	KeyExpired(ctx context.Context, key *apikey.APIKey) error
	KeyRotated(ctx context.Context, oldKey, newKey *apikey.APIKey, graceUntil *time.Time) error
}

// LogNotifier records notifications in the application log. It stands in for
// the real delivery channel in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("LogNotifier")}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) KeyExpiring(ctx context.Context, key *apikey.APIKey, expiresAt time.Time) error {
	n.logger.Info("API key expiring soon",
		zap.String("key_id", key.KeyID),
		zap.String("user_id", key.UserID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

func (n *LogNotifier) KeyExpired(ctx context.Context, key *apikey.APIKey) error {
	n.logger.Info("API key expired",
		zap.String("key_id", key.KeyID),
		zap.String("user_id", key.UserID.String()),
	)
	return nil
}

func (n *LogNotifier) KeyRotated(ctx context.Context, oldKey, newKey *apikey.APIKey, graceUntil *time.Time) error {
	fields := []zap.Field{
		zap.String("old_key_id", oldKey.KeyID),
		zap.String("new_key_id", newKey.KeyID),
		zap.String("user_id", newKey.UserID.String()),
	}
	if graceUntil != nil {
		fields = append(fields, zap.Time("grace_until", *graceUntil))
	}
	n.logger.Info("API key rotated", fields...)
	return nil
}
