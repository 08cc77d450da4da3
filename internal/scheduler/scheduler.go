// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scheduler runs the master maintenance loop of the sync fleet.

Exactly one process executes a tick at a time: every instance races for the
distributed scheduler lock and the losers skip the tick, so the scheduler
binary can run replicated without double-enqueueing work. A tick walks a
fixed list of subtasks (priority maintenance, cover backfill, deferred
search retries, queue safety checks, dead-letter pruning, due-source sync
enqueueing); a failing subtask is logged and the tick moves on, because none
of them depend on another's success.

Due-source claiming is enqueue-safe by construction: the next-check
timestamp is advanced in the same statement that selects the batch, so a
crash between claim and enqueue merely delays those sources by one tier
interval instead of duplicating their jobs.
*/
package scheduler

import (
	"context"
	"log/slog"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// coverRefreshPerTick bounds the cover backfill batch per tick.
const coverRefreshPerTick = 100

// DueSource is one claimed source ready for a sync.
type DueSource struct {
	ID           string
	SyncPriority string
}

// Store defines the data access contract for scheduler maintenance.
type Store interface {
	// ClaimDueSources atomically selects up to limit due sources and pushes
	// their next-check timestamps one tier interval into the future.
	ClaimDueSources(ctx context.Context, limit int) ([]DueSource, error)

	// PromoteHot raises sources of heavily followed series to the HOT tier.
	//
	// Returns:
	//   - int: How many sources were promoted.
	PromoteHot(ctx context.Context, followerThreshold int) (int, error)

	// DemoteStale lowers tiers for sources whose series stopped producing:
	// quiet HOT sources drop to WARM, long-quiet WARM sources drop to COLD.
	//
	// Returns:
	//   - int, int: Sources demoted out of HOT and out of WARM.
	DemoteStale(ctx context.Context) (int, int, error)

	// SeriesMissingCovers lists series with no best cover but at least one
	// source that reports one.
	SeriesMissingCovers(ctx context.Context, limit int) ([]string, error)
}

// Jobs is the slice of the queue facade the scheduler needs.
type Jobs interface {
	AddBulk(ctx context.Context, jobs []queue.Job) (int, error)
	Stats(ctx context.Context) ([]queue.BandStats, error)
	PruneDeadLetters(ctx context.Context) (int, error)
}

// DeferredSearches replays searches that could not dispatch earlier.
type DeferredSearches interface {
	RetryDeferred(ctx context.Context) (int, error)
}

// Scheduler owns the master tick.
type Scheduler struct {
	store    Store
	jobs     Jobs
	searches DeferredSearches
	locks    *kv.KV
	logger   *slog.Logger
}

// New wires the scheduler.
func New(store Store, jobs Jobs, searches DeferredSearches, locks *kv.KV, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		jobs:     jobs,
		searches: searches,
		locks:    locks,
		logger:   logger,
	}
}
