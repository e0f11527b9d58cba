package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type ListParams struct {
	Status *Status
	UserID *uuid.UUID
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, key *APIKey) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*APIKey, error)
	List(ctx context.Context, params ListParams) ([]*APIKey, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error
	// ListExpiringBefore returns active keys whose expiry falls before cutoff.
	ListExpiringBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*APIKey, error)
}
