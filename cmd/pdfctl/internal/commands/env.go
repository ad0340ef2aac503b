package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/bootstrap"
	"github.com/cuongbtq/pdf-gateway/internal/config"
)

// KeyStore is the api key persistence used by the keys commands
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID, userID string) error
	SetAPIKeyPlan(ctx context.Context, userID, plan string) (int64, error)
}

// JobStore is the job persistence used by the jobs commands
type JobStore interface {
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	ResetStaleJob(ctx context.Context, jobID string, staleBefore time.Time) error
}

// Publisher hands job ids back to the worker queue
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Env holds the resources a command runs against
type Env struct {
	Logger     *slog.Logger
	Keys       KeyStore
	Jobs       JobStore
	Publisher  Publisher
	StaleAfter time.Duration
	Plans      map[string]config.PlanConfig
	close      func()
}

// EnvOpener lazily opens an Env so commands that need none stay offline
type EnvOpener func() (*Env, error)

// Close releases the Env's connections
func (e *Env) Close() {
	if e.close != nil {
		e.close()
	}
}

// OpenEnv connects to the database and queue described by the config file
func OpenEnv(configPath string) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&config.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbClient, err := bootstrap.PostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	store := storage.NewStorage(dbClient)
	return &Env{
		Logger:     appLogger.Logger,
		Keys:       store,
		Jobs:       store,
		Publisher:  rabbitClient,
		StaleAfter: cfg.Worker.StaleAfter,
		Plans:      cfg.Plans,
		close: func() {
			rabbitClient.Close()
			dbClient.Close()
			appLogger.Close()
		},
	}, nil
}
