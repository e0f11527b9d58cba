package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/dto"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
)

type APIKeyService struct {
	repo     apikey.Repository
	keys     *keymaterial.Manager
	recorder activity.Recorder
	logger   *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, keys *keymaterial.Manager, recorder activity.Recorder, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:     repo,
		keys:     keys,
		recorder: recorder,
		logger:   logger.Named("APIKeyService"),
	}
}

func (s *APIKeyService) CreateAPIKey(ctx context.Context, req *dto.CreateAPIKeyRequest) (*dto.CreateAPIKeyResponse, error) {
	s.logger.Info("Generating new API key", zap.String("name", req.Name), zap.String("user_id", req.UserID.String()))

	if req.RateLimit != nil && !apikey.RateLimitPeriod(req.RateLimitPeriod).IsValid() {
		return nil, fmt.Errorf("%w: rate_limit requires a valid rate_limit_period", ierr.ErrValidation)
	}

	keyID, secret, digest, err := s.keys.GenerateKeyPair()
	if err != nil {
		s.logger.Error("Failed to generate api key material", zap.Error(err))
		return nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
	}

	newKey := &apikey.APIKey{
		KeyID:           keyID,
		SecretHash:      digest,
		Name:            req.Name,
		UserID:          req.UserID,
		Status:          apikey.StatusActive,
		Scopes:          req.Scopes,
		ExpiresAt:       req.ExpiresAt,
		AllowedIPs:      req.AllowedIPs,
		AllowedDomains:  req.AllowedDomains,
		RateLimit:       req.RateLimit,
		RateLimitPeriod: apikey.RateLimitPeriod(req.RateLimitPeriod),
	}

	insertedID, err := s.repo.Create(ctx, newKey)
	if err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, fmt.Errorf("repository error creating api key: %w", err)
	}

	ev := activity.NewEvent(activity.TypeKeyCreated, activity.SeverityLow)
	ev.KeyID = keyID
	ev.UserID = req.UserID.String()
	s.recorder.Record(ctx, ev)

	s.logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("key_id", keyID))

	return &dto.CreateAPIKeyResponse{
		ID:              insertedID,
		KeyID:           keyID,
		Name:            req.Name,
		UserID:          req.UserID,
		FullKey:         keyID + "." + secret,
		Scopes:          req.Scopes,
		ExpiresAt:       req.ExpiresAt,
		RateLimit:       req.RateLimit,
		RateLimitPeriod: req.RateLimitPeriod,
		CreatedAt:       newKey.CreatedAt,
	}, nil
}

func (s *APIKeyService) GetAPIKey(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	key, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("repository error loading api key %s: %w", id, err)
	}
	return key, nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context, req *dto.ListAPIKeysRequest) (*dto.PaginatedAPIKeyResponse, error) {
	s.logger.Debug("Listing API keys")

	keys, total, err := s.repo.List(ctx, apikey.ListParams{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	responses := make([]*dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = dto.NewAPIKeyResponse(key)
	}

	return &dto.PaginatedAPIKeyResponse{
		Keys:       responses,
		TotalCount: total,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}, nil
}

func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	s.logger.Info("Attempting to revoke API key", zap.String("id", id.String()))

	key, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("repository error loading api key %s: %w", id, err)
	}

	if err := s.repo.UpdateStatus(ctx, id, apikey.StatusRevoked); err != nil {
		s.logger.Error("Failed to revoke api key via repository", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("repository error revoking api key %s: %w", id, err)
	}

	ev := activity.NewEvent(activity.TypeKeyRevoked, activity.SeverityMedium)
	ev.KeyID = key.KeyID
	ev.UserID = key.UserID.String()
	s.recorder.Record(ctx, ev)

	s.logger.Info("API key revoked successfully", zap.String("id", id.String()))
	return nil
}
