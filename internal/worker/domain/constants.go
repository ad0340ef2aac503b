package domain

import "time"

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCanceled  = "CANCELED"
)

const (
	// MessageContentType is the content type of queued job messages
	MessageContentType = "application/json"

	// DefaultHeartbeatInterval applies when the worker is built without one
	DefaultHeartbeatInterval = 30 * time.Second

	// StaleJobReason is recorded on jobs whose worker stopped heartbeating
	// after the last retry
	StaleJobReason = "worker stopped responding"
)
