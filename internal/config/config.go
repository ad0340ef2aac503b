package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Storage backends
const (
	StorageBackendSupabase = "supabase"
	StorageBackendS3       = "s3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Database  DatabaseConfig        `yaml:"database"`
	RabbitMQ  RabbitMQConfig        `yaml:"rabbitmq"`
	Logging   LoggingConfig         `yaml:"logging"`
	App       AppConfig             `yaml:"app"`
	Worker    WorkerConfig          `yaml:"worker"`
	Supabase  SupabaseConfig        `yaml:"supabase"`
	Storage   StorageConfig         `yaml:"storage"`
	Engines   EnginesConfig         `yaml:"engines"`
	Jobs      JobsConfig            `yaml:"jobs"`
	Plans     map[string]PlanConfig `yaml:"plans"`
	AI        AIConfig              `yaml:"ai"`
	Telemetry TelemetryConfig       `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DATABASE_HOST"`
	Port            int           `yaml:"port" env:"DATABASE_PORT"`
	User            string        `yaml:"user" env:"DATABASE_USER"`
	Password        string        `yaml:"password" env:"DATABASE_PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE_NAME"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAgeDays   int    `yaml:"max_age_days"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// StaleAfter is how long a RUNNING job may go without a heartbeat
	// before the reaper hands it back to the queue
	StaleAfter        time.Duration `yaml:"stale_after"`
	ReapInterval      time.Duration `yaml:"reap_interval"`
}

// SupabaseConfig holds the backend-as-a-service project settings
type SupabaseConfig struct {
	URL        string `yaml:"url" env:"SUPABASE_URL"`
	ServiceKey string `yaml:"service_key" env:"SUPABASE_SERVICE_KEY"`
	// JWTSecret enables local verification of access tokens. When empty,
	// tokens are checked remotely against the auth API.
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

// StorageConfig selects and configures the object storage backend
type StorageConfig struct {
	Backend      string        `yaml:"backend"`
	Bucket       string        `yaml:"bucket" env:"STORAGE_BUCKET"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
	S3           S3Config      `yaml:"s3"`
}

// S3Config holds settings for the S3 storage backend
type S3Config struct {
	Region          string `yaml:"region" env:"AWS_REGION"`
	Endpoint        string `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

// EnginesConfig holds the external PDF engine endpoints
type EnginesConfig struct {
	Stirling         StirlingConfig  `yaml:"stirling"`
	Gotenberg        GotenbergConfig `yaml:"gotenberg"`
	MaxResponseBytes int64           `yaml:"max_response_bytes"`
}

// StirlingConfig holds the Java PDF toolkit endpoint
type StirlingConfig struct {
	BaseURL string        `yaml:"base_url" env:"STIRLING_URL"`
	APIKey  string        `yaml:"api_key" env:"STIRLING_API_KEY"`
	Timeout time.Duration `yaml:"timeout"`
}

// GotenbergConfig holds the headless browser / LibreOffice endpoint
type GotenbergConfig struct {
	BaseURL  string        `yaml:"base_url" env:"GOTENBERG_URL"`
	Username string        `yaml:"username" env:"GOTENBERG_USERNAME"`
	Password string        `yaml:"password" env:"GOTENBERG_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout"`
}

// JobsConfig holds job record defaults
type JobsConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	SyncTimeout    time.Duration `yaml:"sync_timeout"`
}

// PlanConfig holds per-plan limits
type PlanConfig struct {
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	Burst             int   `yaml:"burst"`
	MonthlyJobs       int   `yaml:"monthly_jobs"`
	MaxUploadBytes    int64 `yaml:"max_upload_bytes"`
	AIEnabled         bool  `yaml:"ai_enabled"`
}

// AIConfig holds the generative text endpoint settings
type AIConfig struct {
	Enabled         bool    `yaml:"enabled"`
	ProjectID       string  `yaml:"project_id" env:"GOOGLE_CLOUD_PROJECT"`
	Location        string  `yaml:"location"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	MaxInputChars   int     `yaml:"max_input_chars"`
}

// TelemetryConfig holds tracing export settings
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendSupabase
	}
	if c.Storage.SignedURLTTL <= 0 {
		c.Storage.SignedURLTTL = time.Hour
	}
	if c.Engines.MaxResponseBytes <= 0 {
		c.Engines.MaxResponseBytes = 200 << 20
	}
	if c.Engines.Stirling.Timeout <= 0 {
		c.Engines.Stirling.Timeout = 2 * time.Minute
	}
	if c.Engines.Gotenberg.Timeout <= 0 {
		c.Engines.Gotenberg.Timeout = 2 * time.Minute
	}
	if c.Jobs.MaxRetries < 0 {
		c.Jobs.MaxRetries = 0
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		c.Jobs.TimeoutSeconds = 300
	}
	if c.Jobs.SyncTimeout <= 0 {
		c.Jobs.SyncTimeout = 2 * time.Minute
	}
	if c.AI.MaxInputChars <= 0 {
		c.AI.MaxInputChars = 60000
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Worker.StaleAfter <= 0 && c.Worker.HeartbeatInterval > 0 {
		c.Worker.StaleAfter = 4 * c.Worker.HeartbeatInterval
	}
	if c.Worker.ReapInterval <= 0 {
		c.Worker.ReapInterval = time.Minute
	}
}

// Plan returns the limits for a plan name, falling back to "free"
func (c *Config) Plan(name string) PlanConfig {
	if plan, ok := c.Plans[name]; ok {
		return plan
	}
	return c.Plans["free"]
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if _, ok := c.Plans["free"]; !ok {
		return fmt.Errorf("plans must define a \"free\" plan")
	}

	for name, plan := range c.Plans {
		if plan.RequestsPerMinute <= 0 {
			return fmt.Errorf("plan %q: requests_per_minute must be greater than 0", name)
		}
		if plan.MonthlyJobs < 0 {
			return fmt.Errorf("plan %q: monthly_jobs must not be negative", name)
		}
	}

	if c.Supabase.JWTSecret == "" && (c.Supabase.URL == "" || c.Supabase.ServiceKey == "") {
		return fmt.Errorf("supabase jwt_secret or url and service_key are required for authentication")
	}

	if c.AI.Enabled && c.AI.ProjectID == "" {
		return fmt.Errorf("ai project_id is required when ai is enabled")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Engines.Stirling.BaseURL == "" {
		return fmt.Errorf("engines.stirling base_url is required")
	}

	if c.Engines.Gotenberg.BaseURL == "" {
		return fmt.Errorf("engines.gotenberg base_url is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	switch c.Storage.Backend {
	case StorageBackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("supabase url and service_key are required for the supabase storage backend")
		}
	case StorageBackendS3:
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3 region is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}

	return nil
}
