package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
)

type CreateAPIKeyRequest struct {
	Name            string     `json:"name" binding:"required"`
	UserID          uuid.UUID  `json:"user_id" binding:"required"`
	Scopes          []string   `json:"scopes" binding:"required,min=1"`
	ExpiresAt       *time.Time `json:"expires_at" binding:"omitempty,gt"`
	AllowedIPs      []string   `json:"allowed_ips" binding:"omitempty,dive,ip"`
	AllowedDomains  []string   `json:"allowed_domains"`
	RateLimit       *int64     `json:"rate_limit" binding:"omitempty,gt=0"`
	RateLimitPeriod string     `json:"rate_limit_period" binding:"omitempty,oneof=minute hour day month"`
}

type CreateAPIKeyResponse struct {
	ID     uuid.UUID `json:"id"`
	KeyID  string    `json:"key_id"`
	Name   string    `json:"name"`
	UserID uuid.UUID `json:"user_id"`
	// FullKey is the complete credential, shown exactly once at creation.
	FullKey         string     `json:"full_key"`
	Scopes          []string   `json:"scopes"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RateLimit       *int64     `json:"rate_limit,omitempty"`
	RateLimitPeriod string     `json:"rate_limit_period,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type APIKeyResponse struct {
	ID              uuid.UUID     `json:"id"`
	KeyID           string        `json:"key_id"`
	Name            string        `json:"name"`
	UserID          uuid.UUID     `json:"user_id"`
	Status          apikey.Status `json:"status"`
	Scopes          []string      `json:"scopes"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	AllowedIPs      []string      `json:"allowed_ips,omitempty"`
	RateLimit       *int64        `json:"rate_limit,omitempty"`
	RateLimitPeriod string        `json:"rate_limit_period,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	LastUsedAt      *time.Time    `json:"last_used_at,omitempty"`
}

func NewAPIKeyResponse(key *apikey.APIKey) *APIKeyResponse {
	return &APIKeyResponse{
		ID:              key.ID,
		KeyID:           key.KeyID,
		Name:            key.Name,
		UserID:          key.UserID,
		Status:          key.Status,
		Scopes:          key.Scopes,
		ExpiresAt:       key.ExpiresAt,
		AllowedIPs:      key.AllowedIPs,
		RateLimit:       key.RateLimit,
		RateLimitPeriod: string(key.RateLimitPeriod),
		CreatedAt:       key.CreatedAt,
		LastUsedAt:      key.LastUsedAt,
	}
}

type ListAPIKeysRequest struct {
	Status *apikey.Status `form:"status" binding:"omitempty,oneof=active suspended revoked expired"`
	Limit  int            `form:"limit,default=20" binding:"omitempty,gte=0"`
	Offset int            `form:"offset,default=0" binding:"omitempty,gte=0"`
}

type PaginatedAPIKeyResponse struct {
	Keys       []*APIKeyResponse `json:"keys"`
	TotalCount int64             `json:"totalCount"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

type RotateAPIKeyRequest struct {
	Trigger string `json:"trigger" binding:"required,oneof=scheduled manual security_incident"`
}

type RotateAPIKeyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// FullKey is the replacement credential, shown exactly once.
	FullKey    string          `json:"full_key,omitempty"`
	NewKey     *APIKeyResponse `json:"new_key,omitempty"`
	GraceUntil *time.Time      `json:"grace_until,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
}

type MeResponse struct {
	KeyID                string     `json:"key_id"`
	Name                 string     `json:"name"`
	Scopes               []string   `json:"scopes"`
	EffectivePermissions []string   `json:"effective_permissions"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	RateLimit            *int64     `json:"rate_limit,omitempty"`
	RateLimitPeriod      string     `json:"rate_limit_period,omitempty"`
}
