package dto

type FileUploadResponse struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type CreateAPIKeyRequest struct {
	Name               string `json:"name" binding:"required,max=100"`
	ExpiresInDays      int    `json:"expires_in_days" binding:"omitempty,min=1,max=3650"`
	RateLimitPerMinute *int   `json:"rate_limit_per_minute" binding:"omitempty,min=1"`
}

type APIKeyDTO struct {
	KeyID              string `json:"key_id"`
	Name               string `json:"name"`
	KeyPrefix          string `json:"key_prefix"`
	Plan               string `json:"plan"`
	RateLimitPerMinute *int   `json:"rate_limit_per_minute,omitempty"`
	CreatedAt          string `json:"created_at"`
	LastUsedAt         string `json:"last_used_at,omitempty"`
	ExpiresAt          string `json:"expires_at,omitempty"`
	RevokedAt          string `json:"revoked_at,omitempty"`
}

// CreateAPIKeyResponse is the only response that ever carries the plaintext key
type CreateAPIKeyResponse struct {
	APIKeyDTO
	Key string `json:"key"`
}

type UsageResponse struct {
	Plan              string         `json:"plan"`
	PeriodStart       string         `json:"period_start"`
	PeriodEnd         string         `json:"period_end"`
	JobsUsed          int            `json:"jobs_used"`
	JobsLimit         int            `json:"jobs_limit"`
	JobsRemaining     int            `json:"jobs_remaining"`
	JobsByStatus      map[string]int `json:"jobs_by_status"`
	RequestsPerMinute int            `json:"requests_per_minute"`
	MaxUploadBytes    int64          `json:"max_upload_bytes"`
	AIEnabled         bool           `json:"ai_enabled"`
}
