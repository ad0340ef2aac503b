package dto

import "encoding/json"

type RunToolRequest struct {
	InputPaths     []string       `json:"input_paths"`
	Params         map[string]any `json:"params"`
	IdempotencyKey string         `json:"idempotency_key" binding:"omitempty,max=128"`
	OutputName     string         `json:"output_name" binding:"omitempty,max=120"`
	Async          bool           `json:"async"`
}

type SummarizeRequest struct {
	InputPath      string `json:"input_path" binding:"required"`
	Prompt         string `json:"prompt" binding:"omitempty,max=2000"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=128"`
	OutputName     string `json:"output_name" binding:"omitempty,max=120"`
	Async          bool   `json:"async"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED CANCELED"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobResultDTO struct {
	OutputPath  string `json:"output_path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	Text        string `json:"text,omitempty"`
	Model       string `json:"model,omitempty"`
	TokenCount  int    `json:"token_count,omitempty"`
}

type JobDTO struct {
	JobID          string          `json:"job_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	JobType        string          `json:"job_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	Result         *JobResultDTO   `json:"result,omitempty"`
	URL            string          `json:"url,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	RetryCount     int             `json:"retry_count"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	StartedAt      string          `json:"started_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
}
