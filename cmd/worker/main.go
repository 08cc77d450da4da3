// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command worker is the entry point for the Yomira ingestion worker fleet.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool, plus optional read replica).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire stores, services, scrapers and task handlers.
//  7. Start the task server, heartbeat and ops HTTP server with graceful
//     shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/data"
	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/ingest"
	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/library"
	"github.com/taibuivan/yomira-worker/internal/notify"
	"github.com/taibuivan/yomira-worker/internal/ops"
	"github.com/taibuivan/yomira-worker/internal/platform/config"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira-worker/internal/platform/postgres"
	redisstore "github.com/taibuivan/yomira-worker/internal/platform/redis"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/ratelimit"
	"github.com/taibuivan/yomira-worker/internal/scraper"
	"github.com/taibuivan/yomira-worker/internal/search"
	"github.com/taibuivan/yomira-worker/internal/workers"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "yomira-worker"))
	slog.SetDefault(log)

	log.Info("[Yomira] worker_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "yomira-worker"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("ops_port", cfg.OpsPort),
		slog.Int("concurrency", cfg.Concurrency()),
		slog.Int("worker_instances", cfg.WorkerInstances),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Application context for long-lived background routines (heartbeat,
	// middleware cleanup). Cancelled on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	readPool, err := pgstore.NewReadPool(startupCtx, pool, cfg.DatabaseURL, cfg.ReadDatabaseURL(), log)
	must(log, err, "connect to postgres read replica")
	defer func() {
		if readPool != pool {
			readPool.Close()
		}
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, redisstore.Options{
		URL:                cfg.WorkerRedisURL(),
		SentinelHosts:      cfg.RedisSentinelHosts,
		SentinelMasterName: cfg.RedisSentinelMasterName,
	}, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, data.Migrations, data.MigrationsPath, log), "run migrations")

	// ── 6. Shared Infrastructure ──────────────────────────────────────────
	kvStore := kv.New(rdb, cfg.Environment)
	limiter := ratelimit.New(kvStore, cfg.RateLimits, log)

	guard := scraper.NewHostAllowlistGuard()
	registry := scraper.NewRegistry(guard, log)

	redisOpt, err := asynqRedisOpt(cfg)
	must(log, err, "parse queue redis endpoint")

	jobs := queue.New(redisOpt, log)
	defer func() {
		if cerr := jobs.Close(); cerr != nil {
			log.Error("queue close error", slog.Any("error", cerr))
		}
	}()

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	ingestStore := ingest.NewPostgresStore(pool)
	ingestService := ingest.NewService(ingestStore, log)

	catalogStore := catalog.NewPostgresStore(pool)
	catalogService := catalog.NewService(catalogStore, log)

	libraryStore := library.NewPostgresStore(pool)
	notifyStore := notify.NewPostgresStore(pool)

	// Local catalog searches are read-mostly, so they ride the replica.
	dispatcher := search.NewDispatcher(kvStore, catalog.NewPostgresStore(readPool), jobs, log)

	handlers := workers.New(
		ingestService,
		catalogService,
		libraryStore,
		notifyStore,
		registry,
		limiter,
		jobs,
		dispatcher,
		log,
	)

	// ── 8. Ops HTTP Server ────────────────────────────────────────────────
	opsServer := ops.NewServer(appCtx, cfg.OpsPort, log, ops.Checks{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
		CheckQueue: func() error {
			if !jobs.Healthy(context.Background()) {
				return errors.New("task queue not reachable")
			}
			return nil
		},
	})

	opsErr := make(chan error, 1)
	go func() {
		if serveErr := opsServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			opsErr <- serveErr
		}
	}()

	// ── 9. Task Server ────────────────────────────────────────────────────
	go workers.RunHeartbeat(appCtx, kvStore, log)

	taskServer := workers.NewServer(redisOpt, cfg.Concurrency(), log)
	must(log, taskServer.Start(handlers.Mux()), "start task server")

	log.Info("worker_started", slog.Int("pid", os.Getpid()))

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	// Block until OS signal or ops server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-opsErr:
		log.Error("ops server startup error", slog.Any("error", err))
	}

	appCancel()

	// Let in-flight tasks finish before the process exits.
	log.Info("shutting down worker", slog.Duration("timeout", constants.ShutdownTimeout))
	taskServer.Shutdown()

	if err := opsServer.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("ops shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("worker stopped cleanly")
}

// asynqRedisOpt resolves the task queue connection from the shared Redis
// configuration, preferring Sentinel when hosts are configured.
func asynqRedisOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if len(cfg.RedisSentinelHosts) > 0 {
		return asynq.RedisFailoverClientOpt{
			MasterName:    cfg.RedisSentinelMasterName,
			SentinelAddrs: cfg.RedisSentinelHosts,
		}, nil
	}
	return asynq.ParseRedisURI(cfg.WorkerRedisURL())
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
