// Package config loads and validates docsearch configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Cache, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// Index source kinds.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// IndexConfig tells the service where the serialized index lives and how it
// is kept fresh.
type IndexConfig struct {
	Source         string        `yaml:"source"`
	Path           string        `yaml:"path"`
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	Watch          bool          `yaml:"watch"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	StrictTitles   bool          `yaml:"strictTitles"`
}

// SearchConfig controls tokenization, result limits and scoring weights.
type SearchConfig struct {
	MaxResults    int           `yaml:"maxResults"`
	DefaultLimit  int           `yaml:"defaultLimit"`
	MinTermLength int           `yaml:"minTermLength"`
	Stemming      bool          `yaml:"stemming"`
	Weights       WeightsConfig `yaml:"weights"`
}

// WeightsConfig holds the ranking policy. The defaults are a policy choice,
// not values recovered from the index data.
type WeightsConfig struct {
	Title         int            `yaml:"title"`
	Body          int            `yaml:"body"`
	ObjectBase    int            `yaml:"objectBase"`
	ObjectExact   int            `yaml:"objectExact"`
	ObjectPartial int            `yaml:"objectPartial"`
	TypeBoost     map[string]int `yaml:"typeBoost"`
}

// CacheConfig controls the two result cache tiers.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	LRUSize int  `yaml:"lruSize"`
}

// RedisConfig holds Redis connection and caching parameters. ReloadChannel
// is the pub/sub channel that tells every replica to reload its index; empty
// disables the fan-out.
type RedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"poolSize"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	ReloadChannel string        `yaml:"reloadChannel"`
}

// KafkaConfig holds Kafka broker and topic settings for search analytics.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topic         string        `yaml:"topic"`
	BufferSize    int           `yaml:"bufferSize"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// PostgresConfig holds PostgreSQL connection parameters for the postgres
// index source and analytics snapshots. A zero SnapshotInterval disables
// snapshots.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RateLimitConfig configures the per-client token bucket on the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
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
	// the postgres index source needs a connection even when snapshots are off
	if cfg.Index.Source == SourcePostgres {
		cfg.Postgres.Enabled = true
	}
	return cfg, nil
}

// Default returns a Config suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  5 * time.Second,
		},
		Index: IndexConfig{
			Source:         SourceFile,
			Path:           "searchindex.js",
			Name:           "default",
			Watch:          true,
			ReloadInterval: 5 * time.Minute,
			FetchTimeout:   30 * time.Second,
			MaxAttempts:    3,
		},
		Search: SearchConfig{
			MaxResults:    100,
			DefaultLimit:  20,
			MinTermLength: 3,
			Weights: WeightsConfig{
				Title:         10,
				Body:          1,
				ObjectBase:    100,
				ObjectExact:   11,
				ObjectPartial: 6,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			LRUSize: 1024,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			CacheTTL:      60 * time.Second,
			ReloadChannel: "docsearch:reload",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-analytics",
			Topic:         "docsearch-events",
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "docsearch",
			User:             "docsearch",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     5,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Index.Source {
	case SourceFile:
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for source %q", c.Index.Source)
		}
	case SourceHTTP:
		if c.Index.URL == "" {
			return fmt.Errorf("index.url is required for source %q", c.Index.Source)
		}
	case SourcePostgres:
		if c.Index.Name == "" {
			return fmt.Errorf("index.name is required for source %q", c.Index.Source)
		}
	default:
		return fmt.Errorf("unknown index source %q", c.Index.Source)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Search.MinTermLength < 1 {
		return fmt.Errorf("search.minTermLength must be positive, got %d", c.Search.MinTermLength)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rateLimit.requestsPerSecond must be positive when enabled")
	}
	return nil
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_INDEX_SOURCE"); v != "" {
		cfg.Index.Source = v
	}
	if v := os.Getenv("DS_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("DS_INDEX_URL"); v != "" {
		cfg.Index.URL = v
	}
	if v := os.Getenv("DS_INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("DS_INDEX_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Watch = b
		}
	}
	if v := os.Getenv("DS_SEARCH_STEMMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.Stemming = b
		}
	}
	if v := os.Getenv("DS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
