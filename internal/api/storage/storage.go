package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, user_id, api_key_id, idempotency_key, job_type,
	payload, status, result, error_message, worker_id,
	retry_count, max_retries, timeout_seconds,
	created_at, updated_at, started_at, completed_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// Ping checks database reachability
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateJob inserts a PENDING job. A second insert with the same
// (user_id, idempotency_key) returns ErrDuplicateIdempotencyKey.
func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, user_id, api_key_id, idempotency_key, job_type,
			payload, status, retry_count, max_retries, timeout_seconds,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::jsonb, $7, $8, $9, $10,
			$11, $12
		)
		ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
		RETURNING job_id
	`

	var jobID string
	err := s.db.QueryRowContext(
		ctx,
		query,
		job.JobID,
		job.UserID,
		job.APIKeyID,
		job.IdempotencyKey,
		job.JobType,
		job.Payload,
		job.Status,
		job.RetryCount,
		job.MaxRetries,
		job.TimeoutSeconds,
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&jobID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID loads a job regardless of owner
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetJobForUser loads a job owned by userID. Jobs of other users are reported as not found.
func (s *Storage) GetJobForUser(ctx context.Context, jobID, userID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1 AND user_id = $2`

	if err := s.db.GetContext(ctx, &job, query, jobID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Storage) GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1 AND idempotency_key = $2`

	if err := s.db.GetContext(ctx, &job, query, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by idempotency key: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	UserID   string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs so callers can tell whether another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// MarkJobRunning moves a PENDING job to RUNNING for an inline run
func (s *Storage) MarkJobRunning(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return expectOneRow(res, domain.ErrJobStateConflict)
}

// FinishJob records the outcome of a RUNNING job. A job canceled meanwhile
// is left alone and ErrJobStateConflict is returned.
func (s *Storage) FinishJob(ctx context.Context, jobID, status string, result any, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2::jsonb,
		    error_message = NULLIF($3, ''),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4 AND status = $5
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

	res, err := s.db.ExecContext(ctx, query, status, resultJSON, errorMsg, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return expectOneRow(res, domain.ErrJobStateConflict)
}

// CancelJob moves a PENDING or RUNNING job to CANCELED
func (s *Storage) CancelJob(ctx context.Context, jobID, userID string) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2 AND user_id = $3 AND status IN ($4, $5)
		RETURNING ` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.JobStatusCanceled, jobID, userID, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.missOrConflict(ctx, jobID, userID)
		}
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	return &job, nil
}

// DeleteJob removes a job in a terminal state and returns the deleted row
func (s *Storage) DeleteJob(ctx context.Context, jobID, userID string) (*model.Job, error) {
	query := `
		DELETE FROM jobs
		WHERE job_id = $1 AND user_id = $2 AND status IN ($3, $4, $5)
		RETURNING ` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query,
		jobID, userID, domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCanceled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.missOrConflict(ctx, jobID, userID)
		}
		return nil, fmt.Errorf("failed to delete job: %w", err)
	}

	return &job, nil
}

// ResetStaleJob returns a RUNNING job whose heartbeat is older than staleBefore to PENDING
func (s *Storage) ResetStaleJob(ctx context.Context, jobID string, staleBefore time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    started_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3 AND last_heartbeat_at < $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, jobID, domain.JobStatusRunning, staleBefore)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	return expectOneRow(res, domain.ErrJobStateConflict)
}

// CountJobsSince counts jobs created by userID at or after since
func (s *Storage) CountJobsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND created_at >= $2`

	if err := s.db.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// JobUsage counts jobs created by userID at or after since, grouped by status
func (s *Storage) JobUsage(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) AS total
		FROM jobs
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY status
	`

	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, userID, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	usage := make(map[string]int, len(rows))
	for _, row := range rows {
		usage[row.Status] = row.Total
	}
	return usage, nil
}

func (s *Storage) missOrConflict(ctx context.Context, jobID, userID string) error {
	if _, err := s.GetJobForUser(ctx, jobID, userID); err != nil {
		return err
	}
	return domain.ErrJobStateConflict
}

func expectOneRow(res sql.Result, miss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return miss
	}
	return nil
}
