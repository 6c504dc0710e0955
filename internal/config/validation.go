package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidAppEnv indicates an unknown application environment.
	ErrInvalidAppEnv = errors.New("invalid app environment")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDB indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDB = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPoolSize indicates the pool size is out of range.
	ErrInvalidPoolSize = errors.New("invalid pool size")

	// ErrInvalidDimension indicates the embedding dimension is invalid.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidSearchLimit indicates the search result limit is invalid.
	ErrInvalidSearchLimit = errors.New("invalid search limit")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// validLogLevels accepted by Config.LogLevel (case handled by log.ParseLevel).
var validLogLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("%w: %q, must be one of: development, staging, production",
			ErrInvalidAppEnv, c.AppEnv)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDB == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDB)
	}

	if c.PostgresPassword == "dev_password" && c.AppEnv == EnvProduction {
		slog.Warn("using default development password for PostgreSQL in production",
			"hint", "set POSTGRES_PASSWORD or postgres_password in config.yaml")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.PoolMaxConns < 1 || c.PoolMaxConns > 100 {
		return fmt.Errorf("%w: pool_max_conns must be between 1 and 100, got %d",
			ErrInvalidPoolSize, c.PoolMaxConns)
	}

	// The schema declares vector(384); a different dimension requires a
	// migration, so anything else is a configuration mistake.
	if c.EmbeddingDimension != DefaultEmbeddingDimension {
		return fmt.Errorf("%w: schema is declared with %d dimensions, got %d",
			ErrInvalidDimension, DefaultEmbeddingDimension, c.EmbeddingDimension)
	}

	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f",
			ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.SearchLimit < 1 || c.SearchLimit > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d",
			ErrInvalidSearchLimit, c.SearchLimit)
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidLogLevel, c.LogLevel, validLogLevels)
	}

	return nil
}
