// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit governs outbound request budgets per external source.

The budget state is a distributed token bucket in the KV store (see
internal/kv), shared by every worker process, so horizontal scaling never
multiplies the pressure on a source. On top of the bucket this package adds
the waiting policy: a bounded acquire loop and a per-request cooldown that
enforces a minimum inter-request gap even while burst tokens are plentiful.
*/
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/config"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// # Source Budgets

// SourceConfig is the outbound budget for one external source.
type SourceConfig struct {
	// RPS is the sustained refill rate.
	RPS float64
	// Burst is the bucket capacity.
	Burst int
	// Cooldown is the minimum gap after every granted token.
	Cooldown time.Duration
}

// defaults are the per-source budgets shipped with the worker. Values err on
// the polite side; production tunes them via RATE_LIMIT_<SOURCE> overrides.
var defaults = map[string]SourceConfig{
	"mangadex":  {RPS: 5, Burst: 10, Cooldown: 200 * time.Millisecond},
	"comick":    {RPS: 3, Burst: 6, Cooldown: 350 * time.Millisecond},
	"mangapark": {RPS: 2, Burst: 4, Cooldown: 500 * time.Millisecond},
	"mangasee":  {RPS: 1, Burst: 3, Cooldown: 1 * time.Second},
}

// fallback applies to sources with neither a default nor an override.
var fallback = SourceConfig{RPS: 1, Burst: 2, Cooldown: 1 * time.Second}

// # Limiter

// Limiter hands out outbound tokens for external sources.
type Limiter struct {
	store   *kv.KV
	configs map[string]SourceConfig
	logger  *slog.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a limiter from the shipped defaults plus environment overrides.
func New(store *kv.KV, overrides map[string]config.RateLimitOverride, logger *slog.Logger) *Limiter {
	configs := make(map[string]SourceConfig, len(defaults)+len(overrides))
	for name, cfg := range defaults {
		configs[name] = cfg
	}
	for name, override := range overrides {
		configs[name] = SourceConfig{
			RPS:      override.RPS,
			Burst:    override.Burst,
			Cooldown: time.Duration(override.CooldownMs) * time.Millisecond,
		}
	}

	return &Limiter{
		store:   store,
		configs: configs,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Config resolves the effective budget for a source.
func (limiter *Limiter) Config(source string) SourceConfig {
	if cfg, found := limiter.configs[source]; found {
		return cfg
	}
	return fallback
}

/*
Acquire blocks until a token for the source is granted or the deadline runs
out.

Description: Loops on the atomic bucket script. A granted token is followed
by the source's cooldown sleep (politeness gap). A denied attempt sleeps
min(wait hint, remaining budget) and retries.

Parameters:
  - ctx: context.Context
  - source: string (lowercased source name)

Returns:
  - bool: false when the 30s deadline elapsed without a token; the caller
    must surface back-pressure (retryable error) instead of proceeding.
  - error: KV store failures only.
*/
func (limiter *Limiter) Acquire(ctx context.Context, source string) (bool, error) {
	cfg := limiter.Config(source)
	deadline := time.Now().Add(constants.RateLimitMaxWait)

	for {
		result, err := limiter.store.TakeToken(ctx, source, cfg.RPS, cfg.Burst)
		if err != nil {
			return false, err
		}

		if result.Acquired {
			if cfg.Cooldown > 0 {
				if err := limiter.sleep(ctx, cfg.Cooldown); err != nil {
					return false, err
				}
			}
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			limiter.logger.Warn("ratelimit_acquire_deadline",
				slog.String("source", source),
				slog.Duration("max_wait", constants.RateLimitMaxWait),
			)
			return false, nil
		}

		if err := limiter.sleep(ctx, min(result.Wait, remaining)); err != nil {
			return false, err
		}
	}
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
