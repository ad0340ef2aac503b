package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
)

const apiKeyColumns = `
	key_id, user_id, name, key_prefix, key_hash, plan, rate_limit_per_minute,
	created_at, last_used_at, expires_at, revoked_at
`

func (s *Storage) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (
			key_id, user_id, name, key_prefix, key_hash,
			plan, rate_limit_per_minute, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		key.KeyID,
		key.UserID,
		key.Name,
		key.KeyPrefix,
		key.KeyHash,
		key.Plan,
		key.RateLimitPerMinute,
		key.CreatedAt,
		key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

// ListAPIKeys lists keys newest first. An empty userID lists every user's keys.
func (s *Storage) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE ($1::text = '' OR user_id::text = $1::text)
		ORDER BY created_at DESC
	`

	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks a key revoked. An empty userID skips the owner check.
func (s *Storage) RevokeAPIKey(ctx context.Context, keyID, userID string) error {
	query := `
		UPDATE api_keys
		SET revoked_at = NOW()
		WHERE key_id = $1 AND ($2::text = '' OR user_id::text = $2::text) AND revoked_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return expectOneRow(res, domain.ErrAPIKeyNotFound)
}

// SetAPIKeyPlan moves every unrevoked key of userID to plan and returns how many changed.
// Keys keep the plan they were issued with until this runs.
func (s *Storage) SetAPIKeyPlan(ctx context.Context, userID, plan string) (int64, error) {
	query := `
		UPDATE api_keys
		SET plan = $1
		WHERE user_id = $2 AND revoked_at IS NULL AND plan <> $1
	`

	res, err := s.db.ExecContext(ctx, query, plan, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to update api key plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FindActiveAPIKeyByHash returns the unrevoked, unexpired key with the given hash
func (s *Storage) FindActiveAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	return &key, nil
}

func (s *Storage) TouchAPIKey(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
