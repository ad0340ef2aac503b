package worker

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool() {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(i)
	}
}

// workerLoop handles messages until the dispatcher closes jobsChan
func (w *Worker) workerLoop(workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for msg := range w.jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Uint64("delivery_tag", msg.DeliveryTag),
		)
		w.handleMessage(workerName, msg)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// handleMessage processes one message and settles its delivery
func (w *Worker) handleMessage(workerName string, msg *domain.JobMessage) {
	err := w.processJob(msg)

	if err != nil {
		requeue := w.shouldRequeueJob(err)
		w.logger.Error("Job processing failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)

		if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("job_id", msg.JobID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := msg.Delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", msg.JobID),
			slog.String("error", ackErr.Error()),
		)
	}
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func (w *Worker) shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) ||
		errors.Is(err, domain.ErrMaxRetriesExceeded) ||
		errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrJobFailed) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
