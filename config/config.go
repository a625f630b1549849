// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway configuration from environment
// variables, with an optional YAML file for quota limit overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"modelgate/core/quota"
	"modelgate/core/routing/circuitbreaker"
)

// Config holds everything the gateway binary needs to start.
type Config struct {
	// ListenAddr is the HTTP bind address, e.g. ":8080".
	ListenAddr string

	// JWTSecret signs and validates tenant bearer tokens. When empty
	// the gateway falls back to trusted-header identity, which is only
	// safe behind an authenticating proxy.
	JWTSecret string

	// QuotaBackend selects "redis" or "sql".
	QuotaBackend string

	// RedisURL is the quota Redis, e.g. redis://localhost:6379/0.
	RedisURL string

	// DatabaseDriver is "postgres" or "mysql"; DatabaseURL is its DSN.
	// The database also stores usage events when set.
	DatabaseDriver string
	DatabaseURL    string

	// CatalogPath optionally points at a YAML model catalog that
	// overrides or extends the built-in one.
	CatalogPath string

	// LimitsPath optionally points at a YAML quota limits file.
	LimitsPath string

	// QuotaCheckTimeout bounds each admission quota lookup.
	QuotaCheckTimeout time.Duration

	Breaker circuitbreaker.Config
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:        getEnvOrDefault("LISTEN_ADDR", ":8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		QuotaBackend:      getEnvOrDefault("QUOTA_BACKEND", "redis"),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseDriver:    getEnvOrDefault("QUOTA_DB_DRIVER", "postgres"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		CatalogPath:       os.Getenv("MODEL_CATALOG_PATH"),
		LimitsPath:        os.Getenv("QUOTA_LIMITS_PATH"),
		QuotaCheckTimeout: 2 * time.Second,
		Breaker:           circuitbreaker.DefaultConfig(),
	}

	switch cfg.QuotaBackend {
	case "redis", "sql":
	default:
		return Config{}, fmt.Errorf("QUOTA_BACKEND must be redis or sql, got %q", cfg.QuotaBackend)
	}
	if cfg.QuotaBackend == "sql" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("QUOTA_BACKEND=sql requires DATABASE_URL")
	}

	if v := os.Getenv("QUOTA_CHECK_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid QUOTA_CHECK_TIMEOUT %q: %w", v, err)
		}
		cfg.QuotaCheckTimeout = timeout
	}

	if v := os.Getenv("BREAKER_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD %q", v)
		}
		cfg.Breaker.FailureThreshold = n
	}
	if v := os.Getenv("BREAKER_COOLDOWN"); v != "" {
		cooldown, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BREAKER_COOLDOWN %q: %w", v, err)
		}
		cfg.Breaker.Cooldown = cooldown
	}
	if v := os.Getenv("BREAKER_HALF_OPEN_SUCCESSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid BREAKER_HALF_OPEN_SUCCESSES %q", v)
		}
		cfg.Breaker.HalfOpenSuccessThreshold = n
	}
	if v := os.Getenv("BREAKER_HALF_OPEN_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid BREAKER_HALF_OPEN_ATTEMPTS %q", v)
		}
		cfg.Breaker.HalfOpenMaxAttempts = n
	}

	return cfg, nil
}

// LoadLimits reads a YAML quota limits file. Tiers present in the file
// replace the defaults wholesale; absent tiers keep their defaults.
func LoadLimits(path string) (quota.Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading limits file: %w", err)
	}

	var file struct {
		Limits map[string]map[string]int `yaml:"limits"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing limits file: %w", err)
	}

	limits := quota.Limits{}
	for tier, table := range quota.DefaultLimits {
		limits[tier] = table
	}
	for tier, table := range file.Limits {
		if _, ok := table["*"]; !ok {
			return nil, fmt.Errorf("tier %q is missing the \"*\" fallback limit", tier)
		}
		limits[tier] = table
	}
	return limits, nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
