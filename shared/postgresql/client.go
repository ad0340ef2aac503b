package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the lib/pq connection string
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		sslMode,
	)
}

// Client represents a PostgreSQL database client.
// Supabase exposes a regular Postgres endpoint, so the job and api-key
// tables are reached through it directly.
type Client struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

// NewClient creates a new PostgreSQL client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to PostgreSQL",
		slog.String("host", config.Host),
		slog.Int("port", config.Port),
		slog.String("database", config.Database),
	)

	db, err := sqlx.Connect("postgres", config.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping PostgreSQL",
			slog.Any("error", err),
		)
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return &Client{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	c.logger.Info("Closing PostgreSQL connection")

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close PostgreSQL connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("PostgreSQL connection closed successfully")
	return nil
}

// HealthCheck performs a health check on the database
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database query health check failed: %w", err)
	}

	return nil
}

// Stats returns database pool statistics
func (c *Client) Stats() string {
	stats := c.db.Stats()
	return fmt.Sprintf(
		"MaxOpenConns: %d, OpenConns: %d, InUse: %d, Idle: %d, WaitCount: %d, WaitDuration: %s",
		stats.MaxOpenConnections,
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
		stats.WaitDuration,
	)
}
