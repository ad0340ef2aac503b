package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/bootstrap"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/worker"
	"github.com/cuongbtq/pdf-gateway/internal/worker/storage"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := newWorkerID()
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := bootstrap.Telemetry(ctx, cfg, cfg.App.Name+"-worker")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.PostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	engines := bootstrap.Engines(&cfg.Engines, appLogger.Logger)
	runner, _, closeGenerator, err := bootstrap.Pipeline(ctx, cfg, engines, appLogger.Logger)
	if err != nil {
		rabbitClient.Close()
		dbClient.Close()
		return err
	}

	// Cleanup function to close all resources
	cleanup := func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			appLogger.Warn("Failed to flush traces", slog.String("error", err.Error()))
		}
		closeGenerator()
		rabbitClient.Close()
		dbClient.Close()
	}
	defer cleanup()

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		WorkerID:          workerID,
		Store:             storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Runner:            runner,
		Queue:             rabbitClient,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		StaleAfter:        cfg.Worker.StaleAfter,
		ReapInterval:      cfg.Worker.ReapInterval,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	}

	// Cancel context to stop consuming
	cancel()

	// Give in-flight jobs time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := workerInstance.Stop(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			appLogger.Warn("Worker shutdown timeout exceeded, running jobs were requeued")
		} else {
			appLogger.Error("Worker stop failed", slog.String("error", err.Error()))
		}
	} else {
		appLogger.Info("Worker stopped gracefully")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// newWorkerID identifies this process in job records
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
