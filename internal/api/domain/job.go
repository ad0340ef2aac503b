package domain

import (
	"errors"
)

const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCanceled  = "CANCELED"
)

var (
	ErrJobNotFound             = errors.New("job not found")
	ErrJobStateConflict        = errors.New("job is not in a state that allows this operation")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrAPIKeyNotFound          = errors.New("api key not found")
)

// IsTerminal reports whether no further transitions are possible from status
func IsTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}
