package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
)

// KeyStore is the api-key lookup used by Authenticator
type KeyStore interface {
	FindActiveAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	TouchAPIKey(ctx context.Context, keyID string) error
}

// Authenticator resolves request credentials into a principal
type Authenticator struct {
	tokens TokenVerifier
	keys   KeyStore
	logger *slog.Logger
}

func NewAuthenticator(tokens TokenVerifier, keys KeyStore, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		keys:   keys,
		logger: logger,
	}
}

// Authenticate checks the X-API-Key value first, then the Authorization header
func (a *Authenticator) Authenticate(ctx context.Context, authorization, apiKey string) (*Principal, error) {
	if apiKey != "" {
		return a.authenticateKey(ctx, apiKey)
	}

	token, ok := bearerToken(authorization)
	if !ok {
		return nil, ErrMissingCredentials
	}
	return a.tokens.Verify(ctx, token)
}

func (a *Authenticator) authenticateKey(ctx context.Context, plaintext string) (*Principal, error) {
	if !LooksLikeKey(plaintext) {
		return nil, ErrInvalidAPIKey
	}

	key, err := a.keys.FindActiveAPIKeyByHash(ctx, HashKey(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if err := a.keys.TouchAPIKey(ctx, key.KeyID); err != nil {
		a.logger.Warn("Failed to update api key usage",
			slog.String("key_id", key.KeyID),
			slog.String("error", err.Error()),
		)
	}

	p := &Principal{
		UserID:   key.UserID,
		Plan:     key.Plan,
		Method:   MethodAPIKey,
		APIKeyID: key.KeyID,
	}
	if p.Plan == "" {
		p.Plan = DefaultPlan
	}
	if key.RateLimitPerMinute != nil {
		p.RequestsPerMinute = *key.RateLimitPerMinute
	}
	return p, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
