package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
)

// APIKeyRepository is an in-memory apikey.Repository used by tests and the
// database-free development path of the createapikey CLI.
type APIKeyRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*apikey.APIKey
	byKeyID map[string]uuid.UUID
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		byID:    make(map[uuid.UUID]*apikey.APIKey),
		byKeyID: make(map[string]uuid.UUID),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	stored := *key
	r.byID[key.ID] = &stored
	r.byKeyID[key.KeyID] = key.ID
	return key.ID, nil
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok {
		return nil, apikey.ErrAPIKeyNotFound
	}
	keyCopy := *key
	return &keyCopy, nil
}

func (r *APIKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKeyID[keyID]
	if !ok {
		return nil, apikey.ErrAPIKeyNotFound
	}
	keyCopy := *r.byID[id]
	return &keyCopy, nil
}

func (r *APIKeyRepository) List(ctx context.Context, params apikey.ListParams) ([]*apikey.APIKey, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*apikey.APIKey
	for _, key := range r.byID {
		if params.Status != nil && key.Status != *params.Status {
			continue
		}
		if params.UserID != nil && key.UserID != *params.UserID {
			continue
		}
		keyCopy := *key
		matched = append(matched, &keyCopy)
	}

	total := int64(len(matched))
	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (r *APIKeyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status apikey.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	key.Status = status
	key.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *APIKeyRepository) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	key.ExpiresAt = expiresAt
	key.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	key.LastUsedAt = &lastUsed
	return nil
}

func (r *APIKeyRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*apikey.APIKey
	for _, key := range r.byID {
		if key.Status != apikey.StatusActive || key.ExpiresAt == nil {
			continue
		}
		if key.ExpiresAt.Before(cutoff) {
			keyCopy := *key
			matched = append(matched, &keyCopy)
		}
	}
	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
