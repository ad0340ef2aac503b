package model

import "time"

type Job struct {
	JobID          string     `db:"job_id"`
	UserID         string     `db:"user_id"`
	APIKeyID       *string    `db:"api_key_id"`
	IdempotencyKey *string    `db:"idempotency_key"`
	JobType        string     `db:"job_type"`
	Payload        string     `db:"payload"`
	Status         string     `db:"status"`
	Result         *string    `db:"result"`
	ErrorMessage   *string    `db:"error_message"`
	WorkerID       *string    `db:"worker_id"`
	RetryCount     int        `db:"retry_count"`
	MaxRetries     int        `db:"max_retries"`
	TimeoutSeconds int        `db:"timeout_seconds"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	StartedAt      *time.Time `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

type APIKey struct {
	KeyID              string     `db:"key_id"`
	UserID             string     `db:"user_id"`
	Name               string     `db:"name"`
	KeyPrefix          string     `db:"key_prefix"`
	KeyHash            string     `db:"key_hash"`
	Plan               string     `db:"plan"`
	RateLimitPerMinute *int       `db:"rate_limit_per_minute"`
	CreatedAt          time.Time  `db:"created_at"`
	LastUsedAt         *time.Time `db:"last_used_at"`
	ExpiresAt          *time.Time `db:"expires_at"`
	RevokedAt          *time.Time `db:"revoked_at"`
}
