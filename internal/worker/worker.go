package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var errDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// JobStore is the worker's view of the jobs table
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	FinishJob(ctx context.Context, jobID, workerID, status string, result any, errorMsg string) error
	RequeueJob(ctx context.Context, jobID, workerID, errorMsg string) error
	ReleaseJob(ctx context.Context, jobID, workerID string) error
	UpdateJobHeartbeat(ctx context.Context, jobID, workerID string) error
	ResetStaleJobs(ctx context.Context, staleBefore time.Time) ([]string, error)
}

// JobRunner executes one job end to end
type JobRunner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
}

// Queue delivers job messages and accepts republished ones
type Queue interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	WorkerID          string
	Store             JobStore
	Runner            JobRunner
	Queue             Queue
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	// StaleAfter enables the reaper when positive
	StaleAfter   time.Duration
	ReapInterval time.Duration
}

// Worker represents the background job worker
type Worker struct {
	logger            *slog.Logger
	workerID          string
	store             JobStore
	runner            JobRunner
	queue             Queue
	tracer            trace.Tracer
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	reapInterval      time.Duration

	jobsChan chan *domain.JobMessage
	wg       sync.WaitGroup

	// runCtx bounds running jobs. It is independent of the intake context
	// so that shutdown lets in-flight jobs finish.
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = domain.DefaultHeartbeatInterval
	}
	reapInterval := cfg.ReapInterval
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		logger:            cfg.Logger,
		workerID:          cfg.WorkerID,
		store:             cfg.Store,
		runner:            cfg.Runner,
		queue:             cfg.Queue,
		tracer:            otel.Tracer("github.com/cuongbtq/pdf-gateway/internal/worker"),
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		staleAfter:        cfg.StaleAfter,
		reapInterval:      reapInterval,
		jobsChan:          make(chan *domain.JobMessage),
		runCtx:            runCtx,
		cancelRuns:        cancel,
	}
}

// Start consumes jobs until ctx is canceled. It returns an error when the
// broker closes the delivery channel.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool()

	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	if w.staleAfter > 0 {
		w.wg.Add(1)
		go w.runReaper(reapCtx)
	}

	closed := w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	if closed {
		return errDeliveriesClosed
	}
	return nil
}

// Stop waits for in-flight jobs. When ctx expires first, running jobs are
// canceled and handed back to the queue.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancelRuns()
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Worker shutdown timeout exceeded, canceling running jobs")
		w.cancelRuns()
		<-done
		return ctx.Err()
	}
}
