// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis provides a managed client for the worker fleet's shared
key-value store.

The KV store is authoritative for everything that is not an entity: locks,
rate-limit buckets, search heat, pending/deferred sets, quotas, cooldowns,
and worker heartbeats. No in-process state may survive a job invocation;
whatever must be shared between workers lives here.

Core Responsibilities:

  - Volatility: Handles data with TTL (Time-To-Live).
  - Atomicity: Hosts the Lua scripts behind locks and token buckets.
  - Safety: Manages connection pooling and retry logic automatically.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Opinionated default timeouts for Redis operations.
const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// Options selects between a direct URL and a Sentinel-managed deployment.
type Options struct {
	// URL is a redis:// connection URL. Ignored when SentinelHosts is set.
	URL string

	// SentinelHosts is a list of host:port Sentinel addresses.
	SentinelHosts []string

	// SentinelMasterName is the monitored master set name (default "mymaster").
	SentinelMasterName string
}

// NewClient builds a ready-to-use client for either deployment shape.
// The returned client satisfies [redis.UniversalClient] so callers never
// care which one they got.
//
// # Parameters
//   - context: Context for the initial ping.
//   - opts: Connection options (URL or Sentinel).
//   - logger: Structured logger for connection events.
func NewClient(context stdctx.Context, opts Options, logger *slog.Logger) (redis.UniversalClient, error) {
	var client redis.UniversalClient
	var addr string

	if len(opts.SentinelHosts) > 0 {
		masterName := opts.SentinelMasterName
		if masterName == "" {
			masterName = "mymaster"
		}

		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    masterName,
			SentinelAddrs: opts.SentinelHosts,
			DialTimeout:   dialTimeout,
			ReadTimeout:   readTimeout,
			WriteTimeout:  writeTimeout,
			PoolSize:      10,
			MinIdleConns:  2,
		})
		addr = fmt.Sprintf("sentinel:%s", masterName)
	} else {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid URL: %w", err)
		}

		// Pool configuration tuning
		parsed.PoolSize = 10
		parsed.MinIdleConns = 2
		parsed.MaxIdleConns = 5

		parsed.DialTimeout = dialTimeout
		parsed.ReadTimeout = readTimeout
		parsed.WriteTimeout = writeTimeout

		client = redis.NewClient(parsed)
		addr = parsed.Addr
	}

	// Validate connectivity immediately at startup.
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected", slog.String("addr", addr))

	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}
