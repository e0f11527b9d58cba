package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
)

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `
	id, key_id, secret_hash, name, user_id, status, scopes, expires_at,
	allowed_ips, allowed_domains, rate_limit, rate_limit_period,
	rotated_from, created_at, updated_at, last_used_at
`

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	var period *string

	err := row.Scan(
		&key.ID,
		&key.KeyID,
		&key.SecretHash,
		&key.Name,
		&key.UserID,
		&key.Status,
		&key.Scopes,
		&key.ExpiresAt,
		&key.AllowedIPs,
		&key.AllowedDomains,
		&key.RateLimit,
		&period,
		&key.RotatedFrom,
		&key.CreatedAt,
		&key.UpdatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	if period != nil {
		key.RateLimitPeriod = apikey.RateLimitPeriod(*period)
	}
	return &key, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	query := `
		INSERT INTO api_keys (key_id, secret_hash, name, user_id, status, scopes, expires_at,
			allowed_ips, allowed_domains, rate_limit, rate_limit_period, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	var period *string
	if key.RateLimitPeriod != "" {
		p := string(key.RateLimitPeriod)
		period = &p
	}

	err := r.db.QueryRow(ctx, query,
		key.KeyID,
		key.SecretHash,
		key.Name,
		key.UserID,
		key.Status,
		key.Scopes,
		key.ExpiresAt,
		key.AllowedIPs,
		key.AllowedDomains,
		key.RateLimit,
		period,
		key.RotatedFrom,
	).Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Failed to create API key due to unique constraint violation",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("key_id", key.KeyID),
			)
			return uuid.Nil, fmt.Errorf("api key constraint violation (%s)", pgErr.ConstraintName)
		}
		r.logger.Error("Failed to create api key in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating api key: %w", err)
	}

	r.logger.Info("API key created successfully", zap.String("id", key.ID.String()), zap.String("key_id", key.KeyID))
	return key.ID, nil
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by id", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_id = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("API key not found by key id", zap.String("key_id", keyID))
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by key id", zap.String("key_id", keyID), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) List(ctx context.Context, params apikey.ListParams) ([]*apikey.APIKey, int64, error) {
	where := ""
	args := []any{}
	argIdx := 1

	if params.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *params.Status)
		argIdx++
	}
	if params.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *params.UserID)
		argIdx++
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM api_keys WHERE 1=1` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count api keys", zap.Error(err))
		return nil, 0, fmt.Errorf("db error counting api keys: %w", err)
	}

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE 1=1` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list api keys", zap.Error(err))
		return nil, 0, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("db error scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error iterating api keys: %w", err)
	}

	return keys, total, nil
}

func (r *APIKeyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status apikey.Status) error {
	query := `UPDATE api_keys SET status = $1, updated_at = NOW() WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update api key status", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating api key status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	query := `UPDATE api_keys SET expires_at = $1, updated_at = NOW() WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, expiresAt, id)
	if err != nil {
		r.logger.Error("Failed to update api key expiry", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating api key expiry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, lastUsed, id)
	if err != nil {
		r.logger.Error("Failed to update api key last_used_at", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating last used time: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("API key not found when updating last_used_at", zap.String("id", id.String()))
	}
	return nil
}

func (r *APIKeyRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, apikey.StatusActive, cutoff, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list expiring api keys", zap.Error(err))
		return nil, fmt.Errorf("db error listing expiring api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
