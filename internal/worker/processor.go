package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// processJob claims and runs one job, then records its outcome.
// A nil return means the message can be acknowledged.
func (w *Worker) processJob(msg *domain.JobMessage) (err error) {
	ctx, span := w.tracer.Start(w.runCtx, "worker.process_job",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("job.id", msg.JobID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Step 1: Claim job from database (PENDING → RUNNING)
	job, err := w.store.ClaimJob(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}
	span.SetAttributes(
		attribute.String("job.type", job.JobType),
		attribute.Int("job.retry_count", job.RetryCount),
	)

	// Step 2: Parse job payload
	payload, err := pipeline.ParsePayload(job.Payload)
	if err != nil {
		w.logger.Error("Failed to parse job payload",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		w.finish(job, domain.JobStatusFailed, nil, err.Error())
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	// Step 3: Bound the run by the job's timeout
	jobTimeout := w.jobTimeout
	if job.TimeoutSeconds > 0 {
		jobTimeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, jobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Step 4: Heartbeat until the run returns
	go w.sendJobHeartbeat(jobCtx, job.JobID, cancel)

	// Step 5: Run the pipeline
	start := time.Now()
	result, runErr := w.runner.Run(jobCtx, pipeline.Job{
		ID:      job.JobID,
		UserID:  job.UserID,
		Type:    job.JobType,
		Payload: payload,
	})
	cancel()

	if runErr == nil {
		return w.complete(job, result, time.Since(start))
	}
	return w.fail(job, runErr)
}

func (w *Worker) complete(job *domain.Job, result *pipeline.Result, took time.Duration) error {
	if err := w.finish(job, domain.JobStatusCompleted, result, ""); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) {
			return nil
		}
		// the reaper hands the job back once its heartbeat goes stale
		return fmt.Errorf("failed to record completed job: %w", err)
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("output_path", result.OutputPath),
		slog.Duration("duration", took),
	)
	return nil
}

func (w *Worker) fail(job *domain.Job, runErr error) error {
	w.logger.Error("Job execution failed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("error", runErr.Error()),
	)

	if w.runCtx.Err() != nil {
		return w.release(job, runErr)
	}

	retryable := pipeline.IsRetryable(runErr)
	if retryable && job.CanRetry() {
		err := w.store.RequeueJob(context.WithoutCancel(w.runCtx), job.JobID, w.workerID, runErr.Error())
		if errors.Is(err, domain.ErrJobNotRunning) {
			w.logger.Info("Job left RUNNING before requeue", slog.String("job_id", job.JobID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}

		w.logger.Info("Job will be retried",
			slog.String("job_id", job.JobID),
			slog.Int("retry_count", job.RetryCount+1),
			slog.Int("max_retries", job.MaxRetries),
		)
		return domain.NewRetryableError(fmt.Errorf("job execution failed: %w", runErr))
	}

	if err := w.finish(job, domain.JobStatusFailed, nil, runErr.Error()); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) {
			return nil
		}
		return fmt.Errorf("failed to record failed job: %w", err)
	}

	if retryable {
		w.logger.Warn("Job exceeded max retries",
			slog.String("job_id", job.JobID),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
		)
		return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, runErr)
	}
	return fmt.Errorf("%w: %v", domain.ErrJobFailed, runErr)
}

// release returns a job cut short by shutdown to PENDING without spending a retry
func (w *Worker) release(job *domain.Job, runErr error) error {
	err := w.store.ReleaseJob(context.WithoutCancel(w.runCtx), job.JobID, w.workerID)
	if errors.Is(err, domain.ErrJobNotRunning) {
		w.logger.Info("Job left RUNNING before release", slog.String("job_id", job.JobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	w.logger.Info("Job released for another worker",
		slog.String("job_id", job.JobID),
		slog.Int("retry_count", job.RetryCount),
	)
	return domain.NewRetryableError(fmt.Errorf("job interrupted by shutdown: %w", runErr))
}

// finish records a terminal status. ErrJobNotRunning means the owner
// canceled the job while it ran.
func (w *Worker) finish(job *domain.Job, status string, result any, errorMsg string) error {
	err := w.store.FinishJob(context.WithoutCancel(w.runCtx), job.JobID, w.workerID, status, result, errorMsg)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrJobNotRunning) {
		w.logger.Info("Job was canceled while running, discarding outcome",
			slog.String("job_id", job.JobID),
			slog.String("status", status),
		)
	} else {
		w.logger.Error("Failed to update job status",
			slog.String("job_id", job.JobID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp and
// stops the run once the job is no longer RUNNING on this worker
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, stop context.CancelFunc) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			err := w.store.UpdateJobHeartbeat(ctx, jobID, w.workerID)
			switch {
			case errors.Is(err, domain.ErrJobNotRunning):
				w.logger.Info("Job no longer running, stopping it",
					slog.String("job_id", jobID),
				)
				stop()
				return
			case err != nil:
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			default:
				w.logger.Debug("Job heartbeat updated",
					slog.String("job_id", jobID),
				)
			}
		}
	}
}
