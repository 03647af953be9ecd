// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// stage of a deduplication run (MinHash, Banding, Pipeline, Cluster) and for
// the external stores the run talks to (Redis, Postgres, Kafka).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	MinHash  MinHashConfig  `yaml:"minhash"`
	Banding  BandingConfig  `yaml:"banding"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Cache    CacheConfig    `yaml:"cache"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// MinHashConfig controls the signature hash family.
type MinHashConfig struct {
	NumHashes int    `yaml:"numHashes"`
	Seed      uint64 `yaml:"seed"`
}

// BandingConfig controls the LSH banding index.
type BandingConfig struct {
	Threshold float64 `yaml:"threshold"`
	Workers   int     `yaml:"workers"`
}

// PipelineConfig sizes the hashing worker pool and its queues.
type PipelineConfig struct {
	Workers         int `yaml:"workers"`
	JobQueueSize    int `yaml:"jobQueueSize"`
	ResultQueueSize int `yaml:"resultQueueSize"`
	DrainWatermark  int `yaml:"drainWatermark"`
}

// ClusterConfig controls KwikCluster. Threshold zero means "use the banding
// threshold". A nil Seed draws pivots from a random seed; any set value,
// zero included, makes the pivot sequence reproducible.
type ClusterConfig struct {
	Threshold   float64 `yaml:"threshold"`
	Destructive bool    `yaml:"destructive"`
	Seed        *uint64 `yaml:"seed"`
}

// CacheConfig controls the signature cache layers.
type CacheConfig struct {
	LRUSize      int  `yaml:"lruSize"`
	RedisEnabled bool `yaml:"redisEnabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Documents string `yaml:"documents"`
	Clusters  string `yaml:"clusters"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
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

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
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
	return cfg, nil
}

// Default returns the configuration used when no file is given. The hash and
// threshold defaults match the reference command line driver.
func Default() *Config {
	return &Config{
		MinHash: MinHashConfig{
			NumHashes: 200,
			Seed:      427,
		},
		Banding: BandingConfig{
			Threshold: 0.5,
			Workers:   4,
		},
		Pipeline: PipelineConfig{
			Workers:         4,
			JobQueueSize:    1000,
			ResultQueueSize: 1000,
			DrainWatermark:  500,
		},
		Cluster: ClusterConfig{
			Destructive: true,
		},
		Cache: CacheConfig{
			LRUSize: 10000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "kwikdedup",
			User:            "kwikdedup",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "kwikdedup",
			Topics: KafkaTopics{
				Documents: "documents",
				Clusters:  "clusters",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// ClusterThreshold returns the effective clustering threshold.
func (c *Config) ClusterThreshold() float64 {
	if c.Cluster.Threshold == 0 {
		return c.Banding.Threshold
	}
	return c.Cluster.Threshold
}

// Validate rejects parameter combinations no run could succeed with.
func (c *Config) Validate() error {
	if c.MinHash.NumHashes < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "minhash.numHashes must be positive, got %d", c.MinHash.NumHashes)
	}
	if c.Banding.Threshold <= 0 || c.Banding.Threshold >= 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "banding.threshold must be in (0,1), got %g", c.Banding.Threshold)
	}
	if c.Banding.Workers < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "banding.workers must be positive, got %d", c.Banding.Workers)
	}
	p := c.Pipeline
	if p.Workers < 1 || p.JobQueueSize < 1 || p.ResultQueueSize < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "pipeline workers and queue sizes must be positive")
	}
	if p.DrainWatermark < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "pipeline.drainWatermark must not be negative, got %d", p.DrainWatermark)
	}
	if t := c.ClusterThreshold(); t < c.Banding.Threshold || t > 1 {
		return apperrors.Newf(apperrors.ErrThresholdBelowBanding, "cluster threshold %g, banding threshold %g", t, c.Banding.Threshold)
	}
	return nil
}

// applyEnvOverrides reads KD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KD_MINHASH_NUM_HASHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinHash.NumHashes = n
		}
	}
	if v := os.Getenv("KD_MINHASH_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MinHash.Seed = n
		}
	}
	if v := os.Getenv("KD_BANDING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Banding.Threshold = f
		}
	}
	if v := os.Getenv("KD_PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
			cfg.Banding.Workers = n
		}
	}
	if v := os.Getenv("KD_CLUSTER_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Cluster.Seed = &n
		}
	}
	if v := os.Getenv("KD_CLUSTER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cluster.Threshold = f
		}
	}
	if v := os.Getenv("KD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("KD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("KD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("KD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("KD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("KD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
