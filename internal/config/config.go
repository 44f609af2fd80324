// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvDBPath            = "PROJSEARCH_DB_PATH"
	EnvEmbeddingProvider = "PROJSEARCH_EMBEDDING_PROVIDER"
	EnvEmbeddingBaseURL  = "PROJSEARCH_EMBEDDING_BASE_URL"
	EnvEmbeddingModel    = "PROJSEARCH_EMBEDDING_MODEL"
	EnvEmbeddingAPIKey   = "PROJSEARCH_EMBEDDING_API_KEY"
	EnvLogLevel          = "PROJSEARCH_LOG_LEVEL"
	EnvLogFormat         = "PROJSEARCH_LOG_FORMAT"
	EnvMetricsAddr       = "PROJSEARCH_METRICS_ADDR"
	EnvVectorStrategy    = "PROJSEARCH_VECTOR_STRATEGY"
	EnvRefreshWorkers    = "PROJSEARCH_REFRESH_WORKERS"
)

// Config holds all configuration for the service.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Search     SearchConfig     `yaml:"search"`
	QueryCache QueryCacheConfig `yaml:"query_cache"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Detail     DetailConfig     `yaml:"detail"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig holds entity store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "jina", "openai", "local"
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable holding the API key
	APIKey            string        `yaml:"-"`
	Dimension         int           `yaml:"dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
	BatchSize         int           `yaml:"batch_size"`
}

// SearchConfig holds hybrid search configuration.
type SearchConfig struct {
	RRFK            int           `yaml:"rrf_k"`
	Timeout         time.Duration `yaml:"timeout"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	VectorStrategy  string        `yaml:"vector_strategy"` // "auto", "scalar", "batched"
}

// QueryCacheConfig holds query embedding cache configuration.
type QueryCacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// RefreshConfig holds embedding refresh pipeline configuration.
type RefreshConfig struct {
	Workers       int           `yaml:"workers"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	Queue         string        `yaml:"queue"` // "memory" or "bolt"
	QueuePath     string        `yaml:"queue_path"`
	QueueBuffer   int           `yaml:"queue_buffer"`
}

// DetailConfig holds full-detail fetch configuration.
type DetailConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "~/.projsearch/projsearch.db",
		},
		Embedding: EmbeddingConfig{
			Provider:   "local",
			APIKeyEnv:  EnvEmbeddingAPIKey,
			Dimension:  1024,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			BatchSize:  32,
		},
		Search: SearchConfig{
			RRFK:            60,
			Timeout:         10 * time.Second,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			VectorStrategy:  "auto",
		},
		QueryCache: QueryCacheConfig{
			Size: 10000,
			TTL:  7 * 24 * time.Hour,
		},
		Refresh: RefreshConfig{
			Workers:       100,
			ShutdownGrace: 10 * time.Second,
			Queue:         "memory",
			QueuePath:     "~/.projsearch/outbox.db",
			QueueBuffer:   1024,
		},
		Detail: DetailConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnv() error {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	setString(EnvDBPath, &c.Database.Path)
	setString(EnvEmbeddingProvider, &c.Embedding.Provider)
	setString(EnvEmbeddingBaseURL, &c.Embedding.BaseURL)
	setString(EnvEmbeddingModel, &c.Embedding.Model)
	setString(EnvLogLevel, &c.Logging.Level)
	setString(EnvLogFormat, &c.Logging.Format)
	setString(EnvMetricsAddr, &c.Metrics.Addr)
	setString(EnvVectorStrategy, &c.Search.VectorStrategy)

	if v := os.Getenv(EnvRefreshWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRefreshWorkers, err)
		}
		c.Refresh.Workers = n
	}

	keyEnv := c.Embedding.APIKeyEnv
	if keyEnv == "" {
		keyEnv = EnvEmbeddingAPIKey
	}
	if v := os.Getenv(keyEnv); v != "" {
		c.Embedding.APIKey = v
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Search.RRFK <= 0 {
		errs = append(errs, errors.New("search.rrf_k must be positive"))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("search.timeout must be positive"))
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		errs = append(errs, errors.New("search page sizes must satisfy 0 < default_page_size <= max_page_size"))
	}
	if c.QueryCache.Size <= 0 || c.QueryCache.TTL <= 0 {
		errs = append(errs, errors.New("query_cache.size and query_cache.ttl must be positive"))
	}
	if c.Refresh.Workers <= 0 {
		errs = append(errs, errors.New("refresh.workers must be positive"))
	}
	switch c.Refresh.Queue {
	case "memory", "bolt":
	default:
		errs = append(errs, fmt.Errorf("refresh.queue must be memory or bolt, got %q", c.Refresh.Queue))
	}
	if c.Detail.Timeout <= 0 {
		errs = append(errs, errors.New("detail.timeout must be positive"))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding.batch_size must be positive"))
	}

	return errors.Join(errs...)
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
