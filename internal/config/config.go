// Package config loads client configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the client
type Config struct {
	Service  ServiceConfig
	Storage  StorageConfig
	Tracking TrackingConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServiceConfig holds remote verification service settings
type ServiceConfig struct {
	URL         string
	VersionsURL string // compiler release list; empty means the published default
	Timeout     time.Duration
}

// StorageConfig holds job store configuration
type StorageConfig struct {
	Type     string // "sqlite", "postgres" or "memory"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// TrackingConfig holds polling cadences
type TrackingConfig struct {
	JobPollInterval    time.Duration
	ImportPollInterval time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds the optional watch-loop metrics endpoint
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			URL:         getEnv("VERIMATCH_SERVER", "https://sourcify.dev/server"),
			VersionsURL: getEnv("VERIMATCH_VERSIONS_URL", ""),
			Timeout:     getEnvDuration("VERIMATCH_HTTP_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Type: getEnv("VERIMATCH_STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("VERIMATCH_SQLITE_PATH", defaultSQLitePath()),
			},
		},
		Tracking: TrackingConfig{
			JobPollInterval:    getEnvDuration("VERIMATCH_JOB_POLL_INTERVAL", 15*time.Second),
			ImportPollInterval: getEnvDuration("VERIMATCH_IMPORT_POLL_INTERVAL", 3*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("VERIMATCH_LOG_LEVEL", "info"),
			Format: getEnv("VERIMATCH_LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("VERIMATCH_METRICS_ENABLED", false),
			Addr:    getEnv("VERIMATCH_METRICS_ADDR", "127.0.0.1:9463"),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./verimatch.db"
	}
	return home + "/.verimatch/jobs.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
