// Package config loads the ingestion pipeline's configuration: the bus,
// store, and pipeline key groups spec.md §6 names, plus the topic-registry
// file path.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds every recognized configuration key from spec.md §6, grouped
// the same way the spec groups them.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"order-audit-ingestor"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AdminAddr   string `env:"ADMIN_ADDR" envDefault:":8080"`

	// Bus
	BootstrapServers []string      `env:"BOOTSTRAP_SERVERS" envSeparator:"," envDefault:"localhost:9093"`
	ConsumerGroupID  string        `env:"CONSUMER_GROUP_ID" envDefault:"order-audit-trail"`
	AutoOffsetReset  string        `env:"AUTO_OFFSET_RESET" envDefault:"latest"`
	MaxPollInterval  time.Duration `env:"MAX_POLL_INTERVAL_MS" envDefault:"300000ms"`
	FetchMaxBytes    int           `env:"FETCH_MAX_BYTES" envDefault:"10485760"`
	// MaxPollRecords bounds a partition reader's internal read-ahead queue
	// (spec.md §4.7 "Batch shape" — kafka.ReaderConfig.QueueCapacity in
	// internal/bus).
	MaxPollRecords int `env:"MAX_POLL_RECORDS" envDefault:"500"`

	// Store
	DBHost           string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort           string        `env:"DB_PORT" envDefault:"5432"`
	DBName           string        `env:"DB_NAME" envDefault:"audit_trail"`
	DBUser           string        `env:"DB_USER" envDefault:"audit_user"`
	DBPassword       string        `env:"DB_PASSWORD" envDefault:"audit_password"`
	DBSSLMode        string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DBMinPoolSize    int           `env:"DB_MIN_POOL_SIZE" envDefault:"5"`
	DBMaxPoolSize    int           `env:"DB_MAX_POOL_SIZE" envDefault:"100"`
	DBCommandTimeout time.Duration `env:"DB_COMMAND_TIMEOUT_SECONDS" envDefault:"5s"`
	DBConnectTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT_SECONDS" envDefault:"5s"`

	// Pipeline
	MaxRetries                 int           `env:"MAX_RETRIES" envDefault:"5"`
	BackoffInitial             time.Duration `env:"BACKOFF_INITIAL_MS" envDefault:"100ms"`
	BackoffMax                 time.Duration `env:"BACKOFF_MAX_MS" envDefault:"30s"`
	TimestampSkewPastDays      int           `env:"TIMESTAMP_SKEW_PAST_DAYS" envDefault:"30"`
	TimestampSkewFutureSeconds int           `env:"TIMESTAMP_SKEW_FUTURE_SECONDS" envDefault:"300"`
	MetricsFlushInterval       time.Duration `env:"METRICS_FLUSH_INTERVAL_MS" envDefault:"5s"`
	MetricsQueueCapacity       int           `env:"METRICS_QUEUE_CAPACITY" envDefault:"10000"`

	// CursorMode selects how the partition cursor is committed (spec.md §9):
	// "bus" relies solely on the broker's externalized offset storage;
	// "store" additionally persists the cursor inside the event-insert
	// transaction.
	CursorMode string `env:"CURSOR_MODE" envDefault:"store"`

	// TopicRegistryFile points at the YAML file declaring the static
	// topic -> schema mapping (spec.md §4.1).
	TopicRegistryFile string `env:"TOPIC_REGISTRY_FILE" envDefault:"config/topics.yaml"`

	// Persister circuit breaker (wraps the transient-failure path of Persist).
	CircuitBreakerFailureThreshold uint32        `env:"CIRCUIT_BREAKER_FAILURE_THRESHOLD" envDefault:"10"`
	CircuitBreakerOpenTimeout      time.Duration `env:"CIRCUIT_BREAKER_OPEN_TIMEOUT_MS" envDefault:"30s"`
}

// Load reads a local .env file if present (dev convenience only — never
// required, and a missing file is not an error), then binds environment
// variables onto Config via struct tags.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// A malformed .env is a configuration fault; a missing one is not.
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration that would otherwise fail in confusing ways
// deep inside the pipeline. Invalid configuration is exit code 1 (spec.md §6).
func (c *Config) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("config: BOOTSTRAP_SERVERS must not be empty")
	}
	switch strings.ToLower(c.AutoOffsetReset) {
	case "earliest", "latest":
	default:
		return fmt.Errorf("config: AUTO_OFFSET_RESET must be 'earliest' or 'latest', got %q", c.AutoOffsetReset)
	}
	switch c.CursorMode {
	case "bus", "store":
	default:
		return fmt.Errorf("config: CURSOR_MODE must be 'bus' or 'store', got %q", c.CursorMode)
	}
	if c.DBMinPoolSize <= 0 || c.DBMaxPoolSize < c.DBMinPoolSize {
		return fmt.Errorf("config: DB_MIN_POOL_SIZE/DB_MAX_POOL_SIZE invalid (%d/%d)", c.DBMinPoolSize, c.DBMaxPoolSize)
	}
	return nil
}

// DSN builds the Postgres connection string the way the teacher's Load did.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}
