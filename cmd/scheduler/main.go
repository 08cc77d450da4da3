// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command scheduler is the entry point for the Yomira sync scheduler.
//
// Any number of replicas may run; a Redis lock elects one master per tick, so
// deploys and crashes never leave the tick loop unowned.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire the scheduler over the queue, catalog and lock store.
//  7. Start the tick loop and ops HTTP server with graceful shutdown.
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
	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/ops"
	"github.com/taibuivan/yomira-worker/internal/platform/config"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira-worker/internal/platform/postgres"
	redisstore "github.com/taibuivan/yomira-worker/internal/platform/redis"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/scheduler"
	"github.com/taibuivan/yomira-worker/internal/search"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log := rawLog.With(slog.String("app", "yomira-scheduler"))
	slog.SetDefault(log)

	log.Info("[Yomira] scheduler_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "yomira-scheduler"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("ops_port", cfg.OpsPort),
	)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
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

	// ── 6. Scheduler Wiring ───────────────────────────────────────────────
	kvStore := kv.New(rdb, cfg.Environment)

	redisOpt, err := asynqRedisOpt(cfg)
	must(log, err, "parse queue redis endpoint")

	jobs := queue.New(redisOpt, log)
	defer func() {
		if cerr := jobs.Close(); cerr != nil {
			log.Error("queue close error", slog.Any("error", cerr))
		}
	}()

	// The deferred-search drain needs the same dispatcher the workers use so
	// retried queries go through heat gating and caching again.
	dispatcher := search.NewDispatcher(kvStore, catalog.NewPostgresStore(pool), jobs, log)

	sched := scheduler.New(scheduler.NewPostgresStore(pool), jobs, dispatcher, kvStore, log)

	// ── 7. Ops HTTP Server ────────────────────────────────────────────────
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

	// ── 8. Tick Loop ──────────────────────────────────────────────────────
	schedErr := make(chan error, 1)
	go func() {
		if runErr := sched.Run(appCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			schedErr <- runErr
		}
	}()

	log.Info("scheduler_started", slog.Int("pid", os.Getpid()))

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-opsErr:
		log.Error("ops server startup error", slog.Any("error", err))
	case err := <-schedErr:
		log.Error("tick loop error", slog.Any("error", err))
	}

	appCancel()

	log.Info("shutting down scheduler", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := opsServer.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("ops shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("scheduler stopped cleanly")
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
