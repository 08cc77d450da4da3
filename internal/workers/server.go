// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// NewServer builds the queue consumer with the shared band weights and
// retry curve.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queue.BandWeights,
		RetryDelayFunc: queue.RetryDelay,
		Logger:         &asynqLogger{logger: logger},
		LogLevel:       asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("worker_task_errored",
				slog.String("kind", task.Type()),
				slog.String("error", err.Error()),
			)
		}),
	})
}

// Mux registers every handler under its job kind.
func (workers *Workers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(workers.serve)

	mux.HandleFunc(constants.JobCheckSource, workers.HandleCheckSource)
	mux.HandleFunc(constants.JobCanonicalize, workers.HandleCanonicalize)
	mux.HandleFunc(constants.JobSyncSource, workers.HandleSyncSource)
	mux.HandleFunc(constants.JobChapterIngest, workers.HandleChapterIngest)
	mux.HandleFunc(constants.JobNotificationFanout, workers.HandleNotificationFanout)
	mux.HandleFunc(constants.JobNotificationDelivery, workers.HandleNotificationDelivery)
	mux.HandleFunc(constants.JobNotificationDeliveryVIP, workers.HandleNotificationDelivery)
	mux.HandleFunc(constants.JobCoverRefresh, workers.HandleCoverRefresh)

	return mux
}

/*
serve is the middleware around every handler: timing, outcome metrics, and
the retry decision.

Description: Handlers return classified errors; this is where the taxonomy
meets the queue engine. Retryable kinds (rate-limited, timeout, transient
DB, upstream blocked) propagate as-is and ride the backoff curve. Everything
else is wrapped in the engine's skip-retry sentinel so a permanently broken
task archives after one attempt instead of burning five. Context
cancellation stays retryable: it means shutdown, not a bad task.
*/
func (workers *Workers) serve(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, task)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			metrics.ObserveJob(task.Type(), metrics.OutcomeOK, elapsed)
			workers.logger.Debug("worker_task_completed",
				slog.String("kind", task.Type()),
				slog.Duration("elapsed", elapsed),
			)
			return nil

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), apperr.IsRetryable(err):
			metrics.ObserveJob(task.Type(), metrics.OutcomeRetry, elapsed)
			workers.logger.Warn("worker_task_retrying",
				slog.String("kind", task.Type()),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", elapsed),
			)
			return err

		default:
			metrics.ObserveJob(task.Type(), metrics.OutcomeRejected, elapsed)
			workers.logger.Warn("worker_task_rejected",
				slog.String("kind", task.Type()),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", elapsed),
			)
			return fmt.Errorf("%s: %w", err.Error(), asynq.SkipRetry)
		}
	})
}

// asynqLogger adapts the engine's internal logging onto slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
