package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/notify"
)

type RotationTrigger string

const (
	TriggerScheduled        RotationTrigger = "scheduled"
	TriggerManual           RotationTrigger = "manual"
	TriggerSecurityIncident RotationTrigger = "security_incident"
)

// RotationResult is the structured outcome of a rotation. Failures are
// reported here, never raised, so a scheduler loop driving rotations cannot
// be killed by one bad key.
type RotationResult struct {
	Success     bool
	Message     string
	Errors      []string
	NewKey      *apikey.APIKey
	PlainSecret string
	GraceUntil  *time.Time
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Processed int
	Expired   int
	Errors    []string
}

const sweepPageSize = 500

// LifecycleService owns the out-of-band key transitions: expiry sweeps,
// rotations and expiry warnings. It never runs on the request path.
type LifecycleService struct {
	repo        apikey.Repository
	keys        *keymaterial.Manager
	recorder    activity.Recorder
	notifier    notify.Notifier
	transition  time.Duration
	warningLead time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewLifecycleService(repo apikey.Repository, keys *keymaterial.Manager, recorder activity.Recorder, notifier notify.Notifier, transition, warningLead time.Duration, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{
		repo:        repo,
		keys:        keys,
		recorder:    recorder,
		notifier:    notifier,
		transition:  transition,
		warningLead: warningLead,
		logger:      logger.Named("LifecycleService"),
		now:         time.Now,
	}
}

// ExpireDueKeys flips active keys whose expiry has passed to expired. Errors
// on individual keys are collected and the sweep continues.
func (s *LifecycleService) ExpireDueKeys(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	result := SweepResult{}

	// one attempt per key per sweep; rows that fail UpdateStatus stay in the
	// active filter, so the offset advances past them instead of refetching
	// the same page forever
	attempted := make(map[uuid.UUID]struct{})
	failed := 0
	for {
		due, err := s.repo.ListExpiringBefore(ctx, now, sweepPageSize, failed)
		if err != nil {
			s.logger.Error("Failed to list keys due for expiry", zap.Error(err))
			return result, fmt.Errorf("repository error listing expiring keys: %w", err)
		}
		if len(due) == 0 {
			break
		}

		newThisPage := 0
		for _, key := range due {
			if _, seen := attempted[key.ID]; seen {
				continue
			}
			attempted[key.ID] = struct{}{}
			newThisPage++
			result.Processed++

			if err := s.repo.UpdateStatus(ctx, key.ID, apikey.StatusExpired); err != nil {
				s.logger.Error("Failed to expire api key",
					zap.String("id", key.ID.String()),
					zap.Error(err),
				)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", key.KeyID, err))
				failed++
				continue
			}
			result.Expired++

			ev := activity.NewEvent(activity.TypeKeyExpired, activity.SeverityLow)
			ev.KeyID = key.KeyID
			ev.UserID = key.UserID.String()
			s.recorder.Record(ctx, ev)

			if err := s.notifier.KeyExpired(ctx, key); err != nil {
				s.logger.Warn("Failed to send expiry notification", zap.String("key_id", key.KeyID), zap.Error(err))
			}
		}

		if len(due) < sweepPageSize || newThisPage == 0 {
			break
		}
	}

	s.logger.Info("Key expiry sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("expired", result.Expired),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// RotateKey replaces a key's secret, preserving its scopes and limits. A
// scheduled or manual rotation suspends the old key with a grace expiry so
// existing clients keep working through the transition; a security incident
// revokes it on the spot.
func (s *LifecycleService) RotateKey(ctx context.Context, id uuid.UUID, trigger RotationTrigger) RotationResult {
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			return RotationResult{Message: "api key not found", Errors: []string{err.Error()}}
		}
		return RotationResult{Message: "failed to load api key", Errors: []string{err.Error()}}
	}

	keyID, secret, digest, err := s.keys.GenerateKeyPair()
	if err != nil {
		return RotationResult{Message: "failed to generate replacement key material", Errors: []string{err.Error()}}
	}

	now := s.now().UTC()

	newKey := &apikey.APIKey{
		KeyID:           keyID,
		SecretHash:      digest,
		Name:            old.Name,
		UserID:          old.UserID,
		Status:          apikey.StatusActive,
		Scopes:          old.Scopes,
		AllowedIPs:      old.AllowedIPs,
		AllowedDomains:  old.AllowedDomains,
		RateLimit:       old.RateLimit,
		RateLimitPeriod: old.RateLimitPeriod,
		RotatedFrom:     &old.ID,
	}
	// a key issued with a bounded lifetime keeps the same lifetime from the
	// moment of rotation
	if old.ExpiresAt != nil {
		lifetime := old.ExpiresAt.Sub(old.CreatedAt)
		if lifetime > 0 {
			expiry := now.Add(lifetime)
			newKey.ExpiresAt = &expiry
		}
	}

	if _, err := s.repo.Create(ctx, newKey); err != nil {
		return RotationResult{Message: "failed to store replacement key", Errors: []string{err.Error()}}
	}

	result := RotationResult{
		Success:     true,
		NewKey:      newKey,
		PlainSecret: keyID + "." + secret,
	}

	if trigger == TriggerSecurityIncident {
		if err := s.repo.UpdateStatus(ctx, old.ID, apikey.StatusRevoked); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("revoke old key: %v", err))
		}
		result.Message = "key rotated, previous credential revoked immediately"

		ev := activity.NewEvent(activity.TypeKeyRevoked, activity.SeverityHigh)
		ev.KeyID = old.KeyID
		ev.UserID = old.UserID.String()
		ev.Details = map[string]any{"trigger": string(trigger)}
		s.recorder.Record(ctx, ev)
	} else {
		graceUntil := now.Add(s.transition)
		if err := s.repo.UpdateStatus(ctx, old.ID, apikey.StatusSuspended); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("suspend old key: %v", err))
		}
		if err := s.repo.UpdateExpiry(ctx, old.ID, &graceUntil); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("set grace expiry: %v", err))
		}
		result.GraceUntil = &graceUntil
		result.Message = "key rotated, previous credential valid until grace expiry"
	}

	ev := activity.NewEvent(activity.TypeKeyRotated, activity.SeverityMedium)
	ev.KeyID = newKey.KeyID
	ev.UserID = newKey.UserID.String()
	ev.Details = map[string]any{
		"trigger":    string(trigger),
		"old_key_id": old.KeyID,
	}
	s.recorder.Record(ctx, ev)

	if err := s.notifier.KeyRotated(ctx, old, newKey, result.GraceUntil); err != nil {
		s.logger.Warn("Failed to send rotation notification", zap.String("key_id", newKey.KeyID), zap.Error(err))
	}

	s.logger.Info("API key rotated",
		zap.String("old_key_id", old.KeyID),
		zap.String("new_key_id", newKey.KeyID),
		zap.String("trigger", string(trigger)),
	)
	return result
}

// NotifyExpiring warns owners of keys that will expire within the configured
// lead time. Returns how many notifications went out.
func (s *LifecycleService) NotifyExpiring(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(s.warningLead)

	notified := 0
	offset := 0
	for {
		upcoming, err := s.repo.ListExpiringBefore(ctx, cutoff, sweepPageSize, offset)
		if err != nil {
			return notified, fmt.Errorf("repository error listing upcoming expiries: %w", err)
		}
		if len(upcoming) == 0 {
			break
		}

		for _, key := range upcoming {
			if key.ExpiresAt == nil || key.ExpiresAt.Before(now) {
				continue
			}
			if err := s.notifier.KeyExpiring(ctx, key, *key.ExpiresAt); err != nil {
				s.logger.Warn("Failed to send expiry warning", zap.String("key_id", key.KeyID), zap.Error(err))
				continue
			}
			notified++
		}

		if len(upcoming) < sweepPageSize {
			break
		}
		offset += sweepPageSize
	}

	s.logger.Info("Expiry warning pass finished", zap.Int("notified", notified))
	return notified, nil
}
