package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// principal returns the authenticated caller, or aborts with 401
func principal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
		})
		return nil, false
	}
	return p, true
}

func toJobDTO(job *model.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:      job.JobID,
		JobType:    job.JobType,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
	}
	if job.IdempotencyKey != nil {
		out.IdempotencyKey = *job.IdempotencyKey
	}
	if job.Payload != "" && json.Valid([]byte(job.Payload)) {
		out.Payload = json.RawMessage(job.Payload)
	}
	if job.Result != nil {
		if r, err := pipeline.ParseResult(*job.Result); err == nil {
			out.Result = toResultDTO(r)
		}
	}
	if job.ErrorMessage != nil {
		out.ErrorMessage = *job.ErrorMessage
	}
	out.StartedAt = formatTime(job.StartedAt)
	out.CompletedAt = formatTime(job.CompletedAt)
	return out
}

func toResultDTO(r *pipeline.Result) *dto.JobResultDTO {
	return &dto.JobResultDTO{
		OutputPath:  r.OutputPath,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        r.Size,
		Text:        r.Text,
		Model:       r.Model,
		TokenCount:  r.TokenCount,
	}
}

func toAPIKeyDTO(key *model.APIKey) dto.APIKeyDTO {
	return dto.APIKeyDTO{
		KeyID:              key.KeyID,
		Name:               key.Name,
		KeyPrefix:          key.KeyPrefix,
		Plan:               key.Plan,
		RateLimitPerMinute: key.RateLimitPerMinute,
		CreatedAt:          key.CreatedAt.Format(time.RFC3339),
		LastUsedAt:         formatTime(key.LastUsedAt),
		ExpiresAt:          formatTime(key.ExpiresAt),
		RevokedAt:          formatTime(key.RevokedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
