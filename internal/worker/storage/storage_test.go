package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJobID    = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"
	testUserID   = "0b7d6c1e-2f3a-4b5c-8d9e-0f1a2b3c4d5e"
	testWorkerID = "worker-a1b2c3d4"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	return newMockStorageWith(t, sqlmock.QueryMatcherRegexp)
}

func newMockStorageWith(t *testing.T, matcher sqlmock.QueryMatcher) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(sqlx.NewDb(db, "postgres"), logger), mock
}

func TestStorage_ClaimJob(t *testing.T) {
	claimQuery := regexp.QuoteMeta("WHERE job_id = $3") + `\s+` + regexp.QuoteMeta("AND status = $4")

	t.Run("pending job claimed", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(claimQuery).
			WithArgs(domain.JobStatusRunning, testWorkerID, testJobID, domain.JobStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{
				"job_id", "user_id", "job_type", "payload", "retry_count", "max_retries", "timeout_seconds",
			}).AddRow(testJobID, testUserID, "compress", `{}`, 1, 3, 300))

		job, err := s.ClaimJob(context.Background(), testJobID, testWorkerID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, job.Status)
		assert.Equal(t, testWorkerID, job.WorkerID)
		assert.Equal(t, 1, job.RetryCount)
		assert.True(t, job.CanRetry())
	})

	t.Run("claimed by another worker", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(claimQuery).
			WillReturnRows(sqlmock.NewRows([]string{"job_id"}))

		_, err := s.ClaimJob(context.Background(), testJobID, testWorkerID)
		assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	})

	t.Run("database error", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(claimQuery).WillReturnError(errors.New("connection refused"))

		_, err := s.ClaimJob(context.Background(), testJobID, testWorkerID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	})
}

func TestStorage_FinishJob(t *testing.T) {
	finishQuery := regexp.QuoteMeta("WHERE job_id = $4 AND worker_id = $5 AND status = $6")

	t.Run("completed with result", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(finishQuery).
			WithArgs(domain.JobStatusCompleted, `{"size":42}`, "", testJobID, testWorkerID, domain.JobStatusRunning).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.FinishJob(context.Background(), testJobID, testWorkerID, domain.JobStatusCompleted, map[string]int{"size": 42}, "")
		assert.NoError(t, err)
	})

	t.Run("canceled while running", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(finishQuery).
			WithArgs(domain.JobStatusCompleted, sqlmock.AnyArg(), "", testJobID, testWorkerID, domain.JobStatusRunning).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.FinishJob(context.Background(), testJobID, testWorkerID, domain.JobStatusCompleted, map[string]int{"size": 42}, "")
		assert.ErrorIs(t, err, domain.ErrJobNotRunning)
	})

	t.Run("unmarshalable result", func(t *testing.T) {
		s, _ := newMockStorage(t)

		err := s.FinishJob(context.Background(), testJobID, testWorkerID, domain.JobStatusCompleted, make(chan int), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal result")
	})
}

func TestStorage_RequeueJob(t *testing.T) {
	t.Run("counts the retry", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta("retry_count = retry_count + 1")).
			WithArgs(domain.JobStatusPending, "engine unavailable", testJobID, testWorkerID, domain.JobStatusRunning).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.RequeueJob(context.Background(), testJobID, testWorkerID, "engine unavailable"))
	})

	t.Run("job no longer ours", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.RequeueJob(context.Background(), testJobID, testWorkerID, "engine unavailable")
		assert.ErrorIs(t, err, domain.ErrJobNotRunning)
	})
}

func TestStorage_ReleaseJobKeepsRetryCount(t *testing.T) {
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		if strings.Contains(actualSQL, "retry_count") {
			return fmt.Errorf("release must not touch retry_count: %s", actualSQL)
		}
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})

	t.Run("released", func(t *testing.T) {
		s, mock := newMockStorageWith(t, matcher)
		mock.ExpectExec(regexp.QuoteMeta("WHERE job_id = $2 AND worker_id = $3 AND status = $4")).
			WithArgs(domain.JobStatusPending, testJobID, testWorkerID, domain.JobStatusRunning).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.ReleaseJob(context.Background(), testJobID, testWorkerID))
	})

	t.Run("canceled meanwhile", func(t *testing.T) {
		s, mock := newMockStorageWith(t, matcher)
		mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.ReleaseJob(context.Background(), testJobID, testWorkerID)
		assert.ErrorIs(t, err, domain.ErrJobNotRunning)
	})
}

func TestStorage_UpdateJobHeartbeat(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("SET last_heartbeat_at = NOW()")).
		WithArgs(testJobID, testWorkerID, domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateJobHeartbeat(context.Background(), testJobID, testWorkerID)
	assert.ErrorIs(t, err, domain.ErrJobNotRunning)
}

func TestStorage_ResetStaleJobs(t *testing.T) {
	staleBefore := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	failQuery := regexp.QuoteMeta("AND retry_count >= max_retries")
	resetQuery := regexp.QuoteMeta("retry_count = retry_count + 1") + `.*` + regexp.QuoteMeta("RETURNING job_id")

	t.Run("exhausted jobs fail before the rest are reset", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectExec(failQuery).
			WithArgs(domain.JobStatusFailed, domain.StaleJobReason, domain.JobStatusRunning, staleBefore).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(resetQuery).
			WithArgs(domain.JobStatusPending, domain.JobStatusRunning, staleBefore).
			WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow(testJobID).AddRow("5f0c4a2e-8d1b-4c3a-9e7f-6b5a4d3c2b1a"))
		mock.ExpectCommit()

		ids, err := s.ResetStaleJobs(context.Background(), staleBefore)
		require.NoError(t, err)
		assert.Equal(t, []string{testJobID, "5f0c4a2e-8d1b-4c3a-9e7f-6b5a4d3c2b1a"}, ids)
	})

	t.Run("nothing stale", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectExec(failQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(resetQuery).WillReturnRows(sqlmock.NewRows([]string{"job_id"}))
		mock.ExpectCommit()

		ids, err := s.ResetStaleJobs(context.Background(), staleBefore)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("reset failure rolls back the failed marks", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectBegin()
		mock.ExpectExec(failQuery).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(resetQuery).WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		_, err := s.ResetStaleJobs(context.Background(), staleBefore)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to reset stale jobs")
	})
}
