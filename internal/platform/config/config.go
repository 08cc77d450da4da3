// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles worker-fleet settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, queue) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the worker is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Yomira sync worker and
// scheduler processes.
type Config struct {

	// Process settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG"       envDefault:"false"`
	OpsPort     string `env:"OPS_PORT"    envDefault:"9090"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// DatabaseReadURL is an optional read replica. Falls back to the primary
	// when empty.
	DatabaseReadURL string `env:"DATABASE_READ_URL"`

	// Key-Value Store (Redis). REDIS_URL is the shared default; the API and
	// worker fleets may be split onto dedicated instances.
	RedisURL       string `env:"REDIS_URL"`
	RedisAPIURL    string `env:"REDIS_API_URL"`
	RedisWorkerURL string `env:"REDIS_WORKER_URL"`

	// Redis Sentinel (optional, overrides the URL forms when set)
	RedisSentinelHosts      []string `env:"REDIS_SENTINEL_HOSTS" envSeparator:","`
	RedisSentinelMasterName string   `env:"REDIS_SENTINEL_MASTER_NAME" envDefault:"mymaster"`

	// Worker pool sizing
	WorkerInstances   int `env:"WORKER_INSTANCES"   envDefault:"1"`
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"0"`

	// TZ is expected to be UTC in every deployment; recorded for visibility.
	TZ string `env:"TZ" envDefault:"UTC"`

	// RateLimits holds per-source overrides parsed from RATE_LIMIT_<SOURCE>
	// variables. Populated by Load, not by struct tags.
	RateLimits map[string]RateLimitOverride `env:"-"`
}

// RateLimitOverride is the parsed form of RATE_LIMIT_<SOURCE>=rps,burst,cooldownMs.
type RateLimitOverride struct {
	RPS        float64
	Burst      int
	CooldownMs int
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	// Per-source rate limit overrides do not fit the struct-tag model
	// (dynamic suffix), so they are scanned from the raw environment.
	overrides, err := ParseRateLimitOverrides(os.Environ())
	if err != nil {
		return nil, err
	}
	cfg.RateLimits = overrides

	return cfg, nil
}

// ParseRateLimitOverrides extracts RATE_LIMIT_<SOURCE>=rps,burst,cooldownMs
// triplets from an environment listing. Source names are lowercased.
func ParseRateLimitOverrides(environ []string) (map[string]RateLimitOverride, error) {
	const prefix = "RATE_LIMIT_"

	overrides := make(map[string]RateLimitOverride)

	for _, entry := range environ {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, prefix) {
			continue
		}

		source := strings.ToLower(strings.TrimPrefix(name, prefix))
		if source == "" {
			continue
		}

		parts := strings.Split(value, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: %s must be 'rps,burst,cooldownMs', got %q", name, value)
		}

		rps, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("config: %s has invalid rps %q", name, parts[0])
		}

		burst, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || burst < 1 {
			return nil, fmt.Errorf("config: %s has invalid burst %q", name, parts[1])
		}

		cooldown, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || cooldown < 0 {
			return nil, fmt.Errorf("config: %s has invalid cooldownMs %q", name, parts[2])
		}

		overrides[source] = RateLimitOverride{RPS: rps, Burst: burst, CooldownMs: cooldown}
	}

	return overrides, nil
}

// # Accessors

// IsDevelopment reports whether the worker is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the worker is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// WorkerRedisURL resolves the Redis endpoint for queue and KV traffic.
// Dedicated worker instance wins over the shared URL.
func (c *Config) WorkerRedisURL() string {
	if c.RedisWorkerURL != "" {
		return c.RedisWorkerURL
	}
	return c.RedisURL
}

// ReadDatabaseURL resolves the DSN for read-mostly queries, falling back to
// the primary when no replica is configured.
func (c *Config) ReadDatabaseURL() string {
	if c.DatabaseReadURL != "" {
		return c.DatabaseReadURL
	}
	return c.DatabaseURL
}

// Concurrency resolves the per-process worker concurrency. Zero means one
// goroutine per CPU.
func (c *Config) Concurrency() int {
	if c.WorkerConcurrency > 0 {
		return c.WorkerConcurrency
	}
	return runtime.NumCPU()
}
