// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DATABASE_URL, POSTGRES_*, WINGMAN_*)
//  2. Config file (./config.yaml or ~/.wingman/config.yaml)
//  3. Default values
//
// Categories:
//   - Storage: PostgreSQL connection (see storage.go for DSN/URL builders)
//   - Retrieval: embedding dimension, similarity threshold, result limit
//   - Logging: level and format
//   - Tracing: optional OTLP export endpoint
//
// Validation lives in validation.go and uses sentinel errors so callers can
// check failure categories with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Environment names accepted in Config.AppEnv.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

const (
	// DefaultEmbeddingDimension matches the all-MiniLM-L6-v2 sentence
	// embedding model used by the ingestion side. The vector column and the
	// HNSW index are declared with this dimensionality; changing it requires
	// a migration.
	DefaultEmbeddingDimension = 384

	// DefaultSimilarityThreshold is the minimum cosine similarity a stored
	// message must reach to be returned by similarity search.
	DefaultSimilarityThreshold = 0.7

	// DefaultSearchLimit caps similarity search results.
	DefaultSearchLimit = 5
)

// Config stores application configuration.
type Config struct {
	AppEnv string `mapstructure:"app_env"`
	Debug  bool   `mapstructure:"debug"`

	// PostgreSQL connection settings. DATABASE_URL, when set, overrides
	// the discrete fields (see parseDatabaseURL in storage.go).
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Connection pool sizing.
	PoolMaxConns int32 `mapstructure:"pool_max_conns"`

	// Retrieval defaults applied when callers do not pass explicit options.
	EmbeddingDimension  int     `mapstructure:"embedding_dimension"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	SearchLimit         int     `mapstructure:"search_limit"`

	// Logging.
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Tracing. Empty endpoint disables trace export.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	// Endpoint is the OTLP HTTP collector address (host:port). Empty
	// disables tracing entirely.
	Endpoint string `mapstructure:"endpoint"`

	// ServiceName appears as the service tag on exported spans.
	ServiceName string `mapstructure:"service_name"`

	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string `mapstructure:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".wingman")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(configDir)

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", configDir})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over discrete postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values. Postgres defaults match
// the development docker-compose environment.
func setDefaults() {
	viper.SetDefault("app_env", EnvDevelopment)
	viper.SetDefault("debug", false)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5433)
	viper.SetDefault("postgres_user", "wingman")
	viper.SetDefault("postgres_password", "dev_password")
	viper.SetDefault("postgres_db", "ai_wingman")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("pool_max_conns", 5)

	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("search_limit", DefaultSearchLimit)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.service_name", "wingman")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Postgres settings
// keep their conventional unprefixed names; everything else uses WINGMAN_*.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("app_env", "APP_ENV")
	mustBind("debug", "WINGMAN_DEBUG")

	mustBind("postgres_host", "POSTGRES_HOST")
	mustBind("postgres_port", "POSTGRES_PORT")
	mustBind("postgres_user", "POSTGRES_USER")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("postgres_db", "POSTGRES_DB")
	mustBind("postgres_ssl_mode", "POSTGRES_SSL_MODE")

	mustBind("pool_max_conns", "WINGMAN_POOL_MAX_CONNS")

	mustBind("embedding_dimension", "EMBEDDING_DIMENSION")
	mustBind("similarity_threshold", "MIN_SIMILARITY_SCORE")
	mustBind("search_limit", "TOP_K_RESULTS")

	mustBind("log_level", "LOG_LEVEL")
	mustBind("log_json", "LOG_JSON")

	mustBind("tracing.endpoint", "OTLP_ENDPOINT")
	mustBind("tracing.service_name", "WINGMAN_SERVICE_NAME")
	mustBind("tracing.environment", "WINGMAN_ENV_TAG")

	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via viper,
	// because it expands into multiple discrete fields.
}
