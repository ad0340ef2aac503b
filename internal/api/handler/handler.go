package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
)

// JobStore persists job records
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobForUser(ctx context.Context, jobID, userID string) (*model.Job, error)
	GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	MarkJobRunning(ctx context.Context, jobID, workerID string) error
	FinishJob(ctx context.Context, jobID, status string, result any, errorMsg string) error
	CancelJob(ctx context.Context, jobID, userID string) (*model.Job, error)
	DeleteJob(ctx context.Context, jobID, userID string) (*model.Job, error)
	JobUsage(ctx context.Context, userID string, since time.Time) (map[string]int, error)
}

// KeyStore persists api keys
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID, userID string) error
}

// Runner validates and executes jobs
type Runner interface {
	Validate(job pipeline.Job) error
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
	SignURL(ctx context.Context, outputPath string) (string, error)
}

// Publisher hands async jobs to the worker queue
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// HealthCheck is one named dependency probe
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// JobDefaults are applied to every new job record
type JobDefaults struct {
	MaxRetries     int
	TimeoutSeconds int
	SyncTimeout    time.Duration
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Service      string
	Jobs         JobStore
	Keys         KeyStore
	Runner       Runner
	Publisher    Publisher
	Store        objectstore.Store
	Quota        *ratelimit.Quota
	Plans        func(name string) config.PlanConfig
	JobDefaults  JobDefaults
	HealthChecks []HealthCheck
}
