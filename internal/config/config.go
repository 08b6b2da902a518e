/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string

	// Engine timing
	Timezone        string // IANA zone the daily-reset threshold is evaluated in
	ResetHour       int    // local hour after which the daily reset may fire
	PresenceWindow  time.Duration
	EmptyBackoff    time.Duration // sleep when the queue or the fleet is empty
	ErrorBackoff    time.Duration // sleep after a failed engine iteration
	DoneClearDelay  time.Duration // sleep after marking an item done

	// Catalog client
	CatalogBaseURL   string
	CatalogToken     string
	CatalogPageLimit int

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Event fan-out
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("HUGINN_ENV", "development"),
		HTTPBind:    getEnv("HUGINN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("HUGINN_HTTP_PORT", 8080),
		MetricsBind: getEnv("HUGINN_METRICS_BIND", "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(getEnv("HUGINN_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("HUGINN_DB_DSN", ""),

		Timezone:       getEnv("HUGINN_TIMEZONE", "America/Sao_Paulo"),
		ResetHour:      getEnvInt("HUGINN_RESET_HOUR", 21),
		PresenceWindow: time.Duration(getEnvInt("HUGINN_PRESENCE_WINDOW_SECONDS", 300)) * time.Second,
		EmptyBackoff:   time.Duration(getEnvInt("HUGINN_EMPTY_BACKOFF_SECONDS", 30)) * time.Second,
		ErrorBackoff:   time.Duration(getEnvInt("HUGINN_ERROR_BACKOFF_SECONDS", 15)) * time.Second,
		DoneClearDelay: time.Duration(getEnvInt("HUGINN_DONE_CLEAR_SECONDS", 1)) * time.Second,

		CatalogBaseURL:   getEnv("HUGINN_CATALOG_BASE_URL", "https://api.spotify.com/v1"),
		CatalogToken:     getEnv("HUGINN_CATALOG_TOKEN", ""),
		CatalogPageLimit: getEnvInt("HUGINN_CATALOG_PAGE_LIMIT", 100),

		LeaderElectionEnabled: getEnvBool("HUGINN_LEADER_ELECTION_ENABLED", false),
		RedisAddr:             getEnv("HUGINN_REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("HUGINN_REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("HUGINN_REDIS_DB", 0),
		InstanceID:            getEnv("HUGINN_INSTANCE_ID", ""),

		NATSURL: getEnv("HUGINN_NATS_URL", ""),

		TracingEnabled:    getEnvBool("HUGINN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("HUGINN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("HUGINN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("HUGINN_DB_DSN must be provided")
	}

	if cfg.ResetHour < 0 || cfg.ResetHour > 23 {
		return nil, fmt.Errorf("HUGINN_RESET_HOUR must be within 0..23, got %d", cfg.ResetHour)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid HUGINN_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured reset timezone. Load has already
// validated the zone name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
