package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAuthSuccess       Type = "auth.success"
	TypeAuthFailure       Type = "auth.failure"
	TypeRateLimitExceeded Type = "ratelimit.exceeded"
	TypePermissionDenied  Type = "permission.denied"
	TypeKeyCreated        Type = "key.created"
	TypeKeyRevoked        Type = "key.revoked"
	TypeKeyRotated        Type = "key.rotated"
	TypeKeyExpired        Type = "key.expired"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Event struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	Type       Type           `db:"activity_type" json:"activity_type"`
	Severity   Severity       `db:"severity" json:"severity"`
	KeyID      string         `db:"key_id" json:"key_id,omitempty"`
	UserID     string         `db:"user_id" json:"user_id,omitempty"`
	SourceIP   string         `db:"source_ip" json:"source_ip,omitempty"`
	Endpoint   string         `db:"endpoint" json:"endpoint,omitempty"`
	StatusCode int            `db:"status_code" json:"status_code,omitempty"`
	Details    map[string]any `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

func NewEvent(t Type, severity Severity) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder persists activity events. It is fire-and-forget from the caller's
// perspective: implementations swallow and log their own failures so a broken
// audit trail never blocks an admission decision.
type Recorder interface {
	Record(ctx context.Context, event Event)
}
