package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob attempts to claim a job using optimistic locking
// Returns full job details on success, error if job is already claimed or doesn't exist
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING job_id, user_id, job_type, payload, retry_count, max_retries, timeout_seconds
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusRunning
	job.WorkerID = workerID

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", job.JobType),
	)

	return &job, nil
}

// FinishJob records the outcome of a job this worker is running.
// ErrJobNotRunning means the job was canceled or reaped meanwhile.
func (s *Storage) FinishJob(ctx context.Context, jobID, workerID, status string, result any, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2::jsonb,
		    error_message = NULLIF($3, ''),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4 AND worker_id = $5 AND status = $6
	`

	var resultJSON *string
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		encoded := string(data)
		resultJSON = &encoded
	}

	res, err := s.db.ExecContext(ctx, query, status, resultJSON, errorMsg, jobID, workerID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)
	return nil
}

// RequeueJob hands a failed attempt back to PENDING and counts the retry
func (s *Storage) RequeueJob(ctx context.Context, jobID, workerID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    retry_count = retry_count + 1,
		    error_message = NULLIF($2, ''),
		    worker_id = NULL,
		    started_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $3 AND worker_id = $4 AND status = $5
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, errorMsg, jobID, workerID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return expectRow(res)
}

// ReleaseJob hands a job interrupted by shutdown back to PENDING. The
// attempt never finished, so retry_count is left alone.
func (s *Storage) ReleaseJob(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    started_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $2 AND worker_id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, jobID, workerID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return expectRow(res)
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for a running job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND worker_id = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, jobID, workerID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}
	return expectRow(res)
}

// ResetStaleJobs recovers RUNNING jobs whose heartbeat is older than
// staleBefore. Jobs with retries left go back to PENDING and their ids are
// returned for republishing; the rest are marked FAILED.
func (s *Storage) ResetStaleJobs(ctx context.Context, staleBefore time.Time) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	failQuery := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE status = $3
		  AND last_heartbeat_at < $4
		  AND retry_count >= max_retries
	`
	res, err := tx.ExecContext(ctx, failQuery,
		domain.JobStatusFailed, domain.StaleJobReason, domain.JobStatusRunning, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	failed, _ := res.RowsAffected()

	resetQuery := `
		UPDATE jobs
		SET status = $1,
		    retry_count = retry_count + 1,
		    worker_id = NULL,
		    started_at = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND last_heartbeat_at < $3
		RETURNING job_id
	`
	var jobIDs []string
	if err := tx.SelectContext(ctx, &jobIDs, resetQuery,
		domain.JobStatusPending, domain.JobStatusRunning, staleBefore); err != nil {
		return nil, fmt.Errorf("failed to reset stale jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stale job reset: %w", err)
	}

	if failed > 0 || len(jobIDs) > 0 {
		s.logger.Warn("Recovered stale jobs",
			slog.Int64("failed", failed),
			slog.Int("requeued", len(jobIDs)),
		)
	}
	return jobIDs, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotRunning
	}
	return nil
}
