// Package config loads and validates indexgen configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Artifacts, Redis, Kafka, Postgres, Logging, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
)

// Worker count bounds accepted on the command line.
const (
	MinWorkers = 1
	MaxWorkers = 5
)

// Failure policies applied when a worker terminates abnormally.
const (
	FailurePolicyAbort   = "abort"
	FailurePolicyPartial = "partial"
)

// Handling of tokens whose first byte is not a lowercase ASCII letter.
const (
	UnroutableFail = "fail"
	UnroutableSkip = "skip"
)

// Artifact backends.
const (
	BackendFile  = "file"
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer   IndexerConfig   `yaml:"indexer"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexerConfig controls the channel protocol between the orchestrator and
// its workers and the policies applied to bad input or failed workers.
type IndexerConfig struct {
	ChannelCapacity int           `yaml:"channelCapacity"`
	MaxWordLength   int           `yaml:"maxWordLength"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	FailurePolicy   string        `yaml:"failurePolicy"`
	Unroutable      string        `yaml:"unroutable"`
}

// ArtifactsConfig selects where per-worker partial indexes are kept between
// the join barrier and the merge.
type ArtifactsConfig struct {
	Backend  string        `yaml:"backend"`
	Dir      string        `yaml:"dir"`
	BoltPath string        `yaml:"boltPath"`
	TTL      time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters for the redis artifact backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig controls the run-completed notification.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles the phase span log emitted at the end of a run.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus scrape server and the textfile export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     int    `yaml:"port"`
	Textfile string `yaml:"textfile"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			ChannelCapacity: 10,
			FailurePolicy:   FailurePolicyAbort,
			Unroutable:      UnroutableFail,
		},
		Artifacts: ArtifactsConfig{
			Backend:  BackendFile,
			BoltPath: "indexgen.db",
			TTL:      time.Hour,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "index.complete",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "indexgen",
			User:            "indexgen",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.ChannelCapacity < 1 {
		return fmt.Errorf("%w: indexer.channelCapacity must be >= 1, got %d",
			apperrors.ErrInvalidInput, c.Indexer.ChannelCapacity)
	}
	if c.Indexer.MaxWordLength < 0 {
		return fmt.Errorf("%w: indexer.maxWordLength must be >= 0, got %d",
			apperrors.ErrInvalidInput, c.Indexer.MaxWordLength)
	}
	if c.Indexer.IdleTimeout < 0 {
		return fmt.Errorf("%w: indexer.idleTimeout must be >= 0", apperrors.ErrInvalidInput)
	}
	switch c.Indexer.FailurePolicy {
	case FailurePolicyAbort, FailurePolicyPartial:
	default:
		return fmt.Errorf("%w: unknown indexer.failurePolicy %q",
			apperrors.ErrInvalidInput, c.Indexer.FailurePolicy)
	}
	switch c.Indexer.Unroutable {
	case UnroutableFail, UnroutableSkip:
	default:
		return fmt.Errorf("%w: unknown indexer.unroutable %q",
			apperrors.ErrInvalidInput, c.Indexer.Unroutable)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", apperrors.ErrInvalidInput, err)
	}
	switch c.Logging.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("%w: unknown logging.format %q", apperrors.ErrInvalidInput, c.Logging.Format)
	}
	switch c.Artifacts.Backend {
	case BackendFile, BackendBolt, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown artifacts.backend %q",
			apperrors.ErrInvalidInput, c.Artifacts.Backend)
	}
	return nil
}

// ValidateWorkers checks the worker count given on the command line.
func ValidateWorkers(n int) error {
	if n < MinWorkers || n > MaxWorkers {
		return apperrors.Newf(apperrors.ErrInvalidWorkerCount, apperrors.ExitUsage,
			"%d is not an integer between %d and %d", n, MinWorkers, MaxWorkers)
	}
	return nil
}

// applyEnvOverrides reads IG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IG_INDEXER_CHANNEL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.ChannelCapacity = n
		}
	}
	if v := os.Getenv("IG_INDEXER_MAX_WORD_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxWordLength = n
		}
	}
	if v := os.Getenv("IG_INDEXER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.IdleTimeout = d
		}
	}
	if v := os.Getenv("IG_INDEXER_FAILURE_POLICY"); v != "" {
		cfg.Indexer.FailurePolicy = v
	}
	if v := os.Getenv("IG_INDEXER_UNROUTABLE"); v != "" {
		cfg.Indexer.Unroutable = v
	}
	if v := os.Getenv("IG_ARTIFACTS_BACKEND"); v != "" {
		cfg.Artifacts.Backend = v
	}
	if v := os.Getenv("IG_ARTIFACTS_DIR"); v != "" {
		cfg.Artifacts.Dir = v
	}
	if v := os.Getenv("IG_ARTIFACTS_BOLT_PATH"); v != "" {
		cfg.Artifacts.BoltPath = v
	}
	if v := os.Getenv("IG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IG_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("IG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IG_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("IG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("IG_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("IG_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}
