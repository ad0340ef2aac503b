package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeyHandler manages the caller's api keys. Only session tokens may manage keys.
type KeyHandler struct {
	logger *slog.Logger
	keys   KeyStore
}

func NewKeyHandler(deps *Dependencies) *KeyHandler {
	return &KeyHandler{
		logger: deps.Logger,
		keys:   deps.Keys,
	}
}

func sessionPrincipal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := principal(c)
	if !ok {
		return nil, false
	}
	if p.Method != auth.MethodJWT {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "api keys can only be managed with a user session",
		})
		return nil, false
	}
	return p, true
}

// CreateKey handles POST /api/v1/keys
func (h *KeyHandler) CreateKey(c *gin.Context) {
	p, ok := sessionPrincipal(c)
	if !ok {
		return
	}

	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	generated, err := auth.GenerateKey()
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate api key")
		return
	}

	key := &model.APIKey{
		KeyID:              uuid.NewString(),
		UserID:             p.UserID,
		Name:               req.Name,
		KeyPrefix:          generated.Prefix,
		KeyHash:            generated.Hash,
		Plan:               p.Plan,
		RateLimitPerMinute: req.RateLimitPerMinute,
		CreatedAt:          time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		expires := key.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &expires
	}

	if err := h.keys.CreateAPIKey(c.Request.Context(), key); err != nil {
		respondError(c, h.logger, err, "Failed to create api key")
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", key.KeyID),
		slog.String("user_id", p.UserID),
		slog.String("key_prefix", key.KeyPrefix),
	)

	c.JSON(http.StatusCreated, dto.CreateAPIKeyResponse{
		APIKeyDTO: toAPIKeyDTO(key),
		Key:       generated.Plaintext,
	})
}

// ListKeys handles GET /api/v1/keys
func (h *KeyHandler) ListKeys(c *gin.Context) {
	p, ok := sessionPrincipal(c)
	if !ok {
		return
	}

	keys, err := h.keys.ListAPIKeys(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list api keys")
		return
	}

	out := make([]dto.APIKeyDTO, len(keys))
	for i := range keys {
		out[i] = toAPIKeyDTO(&keys[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"keys": out,
	})
}

// RevokeKey handles DELETE /api/v1/keys/:key_id
func (h *KeyHandler) RevokeKey(c *gin.Context) {
	p, ok := sessionPrincipal(c)
	if !ok {
		return
	}

	keyID := c.Param("key_id")
	if _, err := uuid.Parse(keyID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key_id must be a valid UUID",
		})
		return
	}

	if err := h.keys.RevokeAPIKey(c.Request.Context(), keyID, p.UserID); err != nil {
		respondError(c, h.logger, err, "Failed to revoke api key")
		return
	}

	h.logger.Info("API key revoked",
		slog.String("key_id", keyID),
		slog.String("user_id", p.UserID),
	)
	c.Status(http.StatusNoContent)
}
