package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/handler"
	"github.com/cuongbtq/pdf-gateway/internal/api/router"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/cuongbtq/pdf-gateway/internal/bootstrap"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/cuongbtq/pdf-gateway/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/supabase-community/supabase-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// idle rate limit buckets are dropped after this long
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
	maxMultipartMemory   = 32 << 20
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := bootstrap.Telemetry(ctx, cfg, cfg.App.Name)
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
	runner, objectStore, closeGenerator, err := bootstrap.Pipeline(ctx, cfg, engines, appLogger.Logger)
	if err != nil {
		rabbitClient.Close()
		dbClient.Close()
		return err
	}

	// Cleanup function to close all resources
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			appLogger.Warn("Failed to flush traces", slog.String("error", err.Error()))
		}
		closeGenerator()
		rabbitClient.Close()
		dbClient.Close()
	}
	defer cleanup()

	store := storage.NewStorage(dbClient)

	tokens, err := initTokenVerifier(&cfg.Supabase, appLogger.Logger)
	if err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(tokens, store, appLogger.Logger)

	limiter := ratelimit.NewLimiter(limiterIdleTTL)
	go limiter.Run(ctx, limiterSweepInterval)

	deps := &handler.Dependencies{
		Logger:    appLogger.Logger,
		Service:   cfg.App.Name,
		Jobs:      store,
		Keys:      store,
		Runner:    runner,
		Publisher: rabbitClient,
		Store:     objectStore,
		Quota:     ratelimit.NewQuota(store),
		Plans:     cfg.Plan,
		JobDefaults: handler.JobDefaults{
			MaxRetries:     cfg.Jobs.MaxRetries,
			TimeoutSeconds: cfg.Jobs.TimeoutSeconds,
			SyncTimeout:    cfg.Jobs.SyncTimeout,
		},
		HealthChecks: healthChecks(store, rabbitClient, engines),
	}

	// Initialize router
	r := initRouter(cfg, deps, authenticator, limiter)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, cfg.App.Name),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.String("error", err.Error()))
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initTokenVerifier verifies tokens locally when the JWT secret is known,
// otherwise through the auth API
func initTokenVerifier(cfg *config.SupabaseConfig, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.JWTSecret != "" {
		logger.Info("Verifying access tokens locally")
		return auth.NewLocalVerifier(cfg.JWTSecret), nil
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	logger.Info("Verifying access tokens with the auth API")
	return auth.NewRemoteVerifier(client), nil
}

func healthChecks(store *storage.Storage, rabbitClient *rabbitmq.Client, engines *engine.Client) []handler.HealthCheck {
	return []handler.HealthCheck{
		{Name: "database", Check: store.Ping},
		{Name: "queue", Check: func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}},
		{Name: "stirling", Check: func(ctx context.Context) error {
			return engines.Ping(ctx, tools.EngineStirling)
		}},
		{Name: "gotenberg", Check: func(ctx context.Context) error {
			return engines.Ping(ctx, tools.EngineGotenberg)
		}},
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies, authenticator router.Authenticator, limiter *ratelimit.Limiter) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		Authenticator:      authenticator,
		Limiter:            limiter,
		MaxMultipartMemory: maxMultipartMemory,
	})
}
