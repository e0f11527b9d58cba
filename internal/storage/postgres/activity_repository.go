package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
)

// ActivityRepository persists admission audit events. Write failures are
// logged and swallowed so a database hiccup never turns into a failed
// authentication or rate limit decision.
type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger.Named("ActivityRepository"),
	}
}

var _ activity.Recorder = (*ActivityRepository)(nil)

func (r *ActivityRepository) Record(ctx context.Context, event activity.Event) {
	query := `
		INSERT INTO activity_log (id, activity_type, severity, key_id, user_id,
			source_ip, endpoint, status_code, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			r.logger.Warn("Failed to marshal activity event details",
				zap.String("activity_type", string(event.Type)),
				zap.Error(err),
			)
			details = nil
		}
	}

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.Type,
		event.Severity,
		nullIfEmpty(event.KeyID),
		nullIfEmpty(event.UserID),
		nullIfEmpty(event.SourceIP),
		nullIfEmpty(event.Endpoint),
		event.StatusCode,
		details,
		event.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record activity event",
			zap.String("activity_type", string(event.Type)),
			zap.String("key_id", event.KeyID),
			zap.Error(err),
		)
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
