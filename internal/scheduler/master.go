// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// Run executes the tick loop until the context is canceled. The first tick
// fires immediately so a fresh deployment does not idle for a full interval.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(constants.SchedulerTickInterval)
	defer ticker.Stop()

	scheduler.tickOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scheduler.tickOnce(ctx)
		}
	}
}

// tickOnce races for the master lock and runs one tick when it wins.
func (scheduler *Scheduler) tickOnce(ctx context.Context) {
	err := scheduler.locks.WithLock(ctx, constants.SchedulerLockName, constants.SchedulerLockTTL, scheduler.Tick)
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrLockNotAcquired):
		scheduler.logger.Debug("scheduler_tick_skipped")
	case errors.Is(err, context.Canceled):
	default:
		scheduler.logger.Error("scheduler_tick_failed", slog.String("error", err.Error()))
	}
}

/*
Tick runs every maintenance subtask once.

Description: Subtasks are independent, so each failure is collected and the
tick keeps going; the joined error surfaces everything that went wrong in
one log line. The due-source enqueue runs last so the tick's own priority
changes are already visible to it.
*/
func (scheduler *Scheduler) Tick(ctx context.Context) error {
	started := time.Now()

	var errs []error
	step := func(name string, fn func(context.Context) error) {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			scheduler.logger.Warn("scheduler_step_failed",
				slog.String("step", name),
				slog.String("error", err.Error()),
			)
		}
	}

	step("maintain_priorities", scheduler.maintainPriorities)
	step("backfill_covers", scheduler.backfillCovers)
	step("retry_deferred_searches", scheduler.retryDeferredSearches)
	step("check_safety", scheduler.checkSafety)
	step("prune_dead_letters", scheduler.pruneDeadLetters)
	step("enqueue_due_syncs", scheduler.enqueueDueSyncs)

	scheduler.logger.Info("scheduler_tick_completed",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("failed_steps", len(errs)),
	)
	return errors.Join(errs...)
}

// # Subtasks

// maintainPriorities promotes heavily followed sources and demotes quiet
// ones between the HOT/WARM/COLD tiers.
func (scheduler *Scheduler) maintainPriorities(ctx context.Context) error {
	promoted, err := scheduler.store.PromoteHot(ctx, constants.HotReaderThreshold)
	if err != nil {
		return err
	}

	demotedHot, demotedWarm, err := scheduler.store.DemoteStale(ctx)
	if err != nil {
		return err
	}

	if promoted > 0 || demotedHot > 0 || demotedWarm > 0 {
		scheduler.logger.Info("scheduler_priorities_maintained",
			slog.Int("promoted_hot", promoted),
			slog.Int("demoted_hot", demotedHot),
			slog.Int("demoted_warm", demotedWarm),
		)
	}
	return nil
}

// backfillCovers enqueues cover-refresh jobs for series that lost or never
// had a best cover even though a source reports one.
func (scheduler *Scheduler) backfillCovers(ctx context.Context) error {
	seriesIDs, err := scheduler.store.SeriesMissingCovers(ctx, coverRefreshPerTick)
	if err != nil {
		return err
	}
	if len(seriesIDs) == 0 {
		return nil
	}

	jobs := make([]queue.Job, 0, len(seriesIDs))
	for _, seriesID := range seriesIDs {
		jobs = append(jobs, queue.Job{
			Kind:     constants.JobCoverRefresh,
			ID:       queue.CoverRefreshJobID(seriesID),
			Priority: constants.PriorityLow,
			Payload:  queue.CoverRefreshPayload{SeriesID: seriesID},
		})
	}

	added, err := scheduler.jobs.AddBulk(ctx, jobs)
	if err != nil {
		return err
	}
	if added > 0 {
		scheduler.logger.Info("scheduler_covers_enqueued", slog.Int("count", added))
	}
	return nil
}

// retryDeferredSearches replays a bounded sample of deferred searches.
func (scheduler *Scheduler) retryDeferredSearches(ctx context.Context) error {
	dispatched, err := scheduler.searches.RetryDeferred(ctx)
	if err != nil {
		return err
	}
	if dispatched > 0 {
		scheduler.logger.Info("scheduler_deferred_searches_dispatched", slog.Int("count", dispatched))
	}
	return nil
}

// pruneDeadLetters deletes failed-out tasks past the retention window.
func (scheduler *Scheduler) pruneDeadLetters(ctx context.Context) error {
	_, err := scheduler.jobs.PruneDeadLetters(ctx)
	return err
}

// enqueueDueSyncs claims the due-source batch and enqueues one sync job per
// source. The claim already advanced each source's next check, so a partial
// enqueue failure delays sources rather than duplicating them.
func (scheduler *Scheduler) enqueueDueSyncs(ctx context.Context) error {
	due, err := scheduler.store.ClaimDueSources(ctx, constants.SyncBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	jobs := make([]queue.Job, 0, len(due))
	for _, source := range due {
		jobs = append(jobs, queue.Job{
			Kind:     constants.JobSyncSource,
			ID:       queue.SyncJobID(source.ID),
			Priority: tierPriority(source.SyncPriority),
			Payload:  queue.SyncSourcePayload{SeriesSourceID: source.ID},
		})
	}

	added, err := scheduler.jobs.AddBulk(ctx, jobs)
	if err != nil {
		return err
	}

	scheduler.logger.Info("scheduler_syncs_enqueued",
		slog.Int("due", len(due)),
		slog.Int("enqueued", added),
	)
	return nil
}

// tierPriority maps a sync tier onto its logical job priority.
func tierPriority(tier string) int {
	switch tier {
	case "HOT":
		return constants.PriorityHot
	case "WARM":
		return constants.PriorityWarm
	default:
		return constants.PriorityCold
	}
}
