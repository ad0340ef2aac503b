package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
)

// runReaper periodically recovers jobs whose worker stopped heartbeating
func (w *Worker) runReaper(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reapStaleJobs(ctx)
		}
	}
}

// reapStaleJobs resets stale jobs and republishes those with retries left
func (w *Worker) reapStaleJobs(ctx context.Context) int {
	jobIDs, err := w.store.ResetStaleJobs(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		w.logger.Error("Failed to reset stale jobs", slog.String("error", err.Error()))
		return 0
	}

	published := 0
	for _, jobID := range jobIDs {
		body, _ := json.Marshal(domain.JobMessage{JobID: jobID})
		if err := w.queue.Publish(ctx, body, domain.MessageContentType); err != nil {
			w.logger.Error("Failed to republish stale job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
		w.logger.Info("Stale job republished", slog.String("job_id", jobID))
	}
	return published
}
