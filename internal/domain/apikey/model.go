package apikey

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

type RateLimitPeriod string

const (
	PeriodMinute RateLimitPeriod = "minute"
	PeriodHour   RateLimitPeriod = "hour"
	PeriodDay    RateLimitPeriod = "day"
	PeriodMonth  RateLimitPeriod = "month"
)

// Duration maps a rate limit period onto a concrete window. A month is
// counted as 30 days.
func (p RateLimitPeriod) Duration() time.Duration {
	switch p {
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

func (p RateLimitPeriod) IsValid() bool {
	return p.Duration() > 0
}

type APIKey struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	KeyID           string          `db:"key_id" json:"key_id"`
	SecretHash      string          `db:"secret_hash" json:"-"`
	Name            string          `db:"name" json:"name"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Status          Status          `db:"status" json:"status"`
	Scopes          []string        `db:"scopes" json:"scopes"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	AllowedIPs      []string        `db:"allowed_ips" json:"allowed_ips,omitempty"`
	AllowedDomains  []string        `db:"allowed_domains" json:"allowed_domains,omitempty"`
	RateLimit       *int64          `db:"rate_limit" json:"rate_limit,omitempty"`
	RateLimitPeriod RateLimitPeriod `db:"rate_limit_period" json:"rate_limit_period,omitempty"`
	RotatedFrom     *uuid.UUID      `db:"rotated_from" json:"rotated_from,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	LastUsedAt      *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
}

// IsExpired reports time-derived expiry, independent of Status.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// InRotationGrace reports whether a suspended key is still inside its
// post-rotation transition window and therefore still authenticates.
func (k *APIKey) InRotationGrace(now time.Time) bool {
	return k.Status == StatusSuspended && k.ExpiresAt != nil && k.ExpiresAt.After(now)
}

// IPAllowed reports whether sourceIP may use this key. An empty allowlist
// admits every address.
func (k *APIKey) IPAllowed(sourceIP string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	for _, ip := range k.AllowedIPs {
		if ip == sourceIP {
			return true
		}
	}
	return false
}
