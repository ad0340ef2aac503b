// Package bootstrap builds the clients shared by the service binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/ai"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/shared/logger"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"github.com/cuongbtq/pdf-gateway/shared/postgresql"
	"github.com/cuongbtq/pdf-gateway/shared/rabbitmq"
	"github.com/cuongbtq/pdf-gateway/shared/telemetry"
)

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		MaxSizeMB:    cfg.MaxSizeMB,
		MaxBackups:   cfg.MaxBackups,
		MaxAgeDays:   cfg.MaxAgeDays,
	})
}

// PostgreSQL initializes the PostgreSQL database client
func PostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// RabbitMQ initializes the RabbitMQ client
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// Telemetry installs the tracer provider for serviceName
func Telemetry(ctx context.Context, cfg *config.Config, serviceName string) (func(context.Context) error, error) {
	return telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
}

// Engines builds the Stirling/Gotenberg client
func Engines(cfg *config.EnginesConfig, logger *slog.Logger) *engine.Client {
	return engine.NewClient(engine.Config{
		StirlingURL:       cfg.Stirling.BaseURL,
		StirlingAPIKey:    cfg.Stirling.APIKey,
		StirlingTimeout:   cfg.Stirling.Timeout,
		GotenbergURL:      cfg.Gotenberg.BaseURL,
		GotenbergUser:     cfg.Gotenberg.Username,
		GotenbergPassword: cfg.Gotenberg.Password,
		GotenbergTimeout:  cfg.Gotenberg.Timeout,
		MaxResponseBytes:  cfg.MaxResponseBytes,
	}, nil, logger)
}

// Generator returns the Gemini generator when AI is enabled. The returned
// close func is always safe to call.
func Generator(ctx context.Context, cfg *config.AIConfig, logger *slog.Logger) (ai.Generator, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		logger.Info("AI features disabled")
		return ai.Disabled{}, noop, nil
	}

	gemini, err := ai.NewGemini(ctx, ai.Config{
		ProjectID:       cfg.ProjectID,
		Location:        cfg.Location,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		MaxInputChars:   cfg.MaxInputChars,
	}, logger)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize AI generator: %w", err)
	}

	logger.Info("AI generator initialized",
		slog.String("model", cfg.Model),
		slog.String("location", cfg.Location),
	)
	return gemini, gemini.Close, nil
}

// Pipeline wires object storage, engines and the generator into a job runner
func Pipeline(ctx context.Context, cfg *config.Config, engines pipeline.EngineClient, logger *slog.Logger) (*pipeline.Runner, objectstore.Store, func() error, error) {
	store, err := objectstore.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	generator, closeGenerator, err := Generator(ctx, &cfg.AI, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	runner := pipeline.NewRunner(store, engines, generator, pipeline.Config{
		SignedURLTTL: cfg.Storage.SignedURLTTL,
	}, logger)

	return runner, store, closeGenerator, nil
}
