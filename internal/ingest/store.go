// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"time"
)

// Store defines the data access contract for the ingestion pipeline.
//
// # Architecture
//
// The interface lives here because the service layer (the consumer) defines
// what it needs; the PostgreSQL implementation lives in store_postgres.go.
// Every write is an upsert on a natural key so the whole contract is safe to
// replay.
type Store interface {
	// FindSource returns the series source row by ID.
	//
	// It returns apperr.NotFound if the source is absent.
	FindSource(ctx context.Context, id string) (*SeriesSource, error)

	// IngestBatch upserts a batch of chapters for a series inside one
	// transaction: each chapter lands in the logical catalog and is linked
	// to the providing source.
	//
	// Returns:
	//   - []NewChapter: The logical chapters created (not merely re-seen).
	//   - error: Classified database errors.
	IngestBatch(ctx context.Context, source *SeriesSource, chapters []ChapterInput) ([]NewChapter, error)

	// FinalizeSync records a successful sync on the source row: success and
	// check timestamps move to now, the failure streak resets, and the
	// reported chapter count is SET (not incremented) so shrinking sources
	// converge instead of drifting upward.
	FinalizeSync(ctx context.Context, sourceID string, chapterCount int, nextCheckAt time.Time) error

	// RecordFailure bumps the failure streak and pushes the next check out.
	//
	// Returns:
	//   - int: The failure count after the increment.
	RecordFailure(ctx context.Context, sourceID string, nextCheckAt time.Time) (int, error)

	// AdvanceLatestChapter raises the series' latest-chapter watermark. The
	// update is guarded so the watermark never moves backward, no matter how
	// stale the calling sync is.
	AdvanceLatestChapter(ctx context.Context, seriesID string, number float64) error

	// RefreshBestCover recomputes the series cover from the most trusted
	// source that has one.
	RefreshBestCover(ctx context.Context, seriesID string) error

	// WithSeriesLock runs fn while holding the per-series advisory lock.
	//
	// Returns:
	//   - bool: false when the lock is already held elsewhere; fn did not run.
	WithSeriesLock(ctx context.Context, seriesID string, fn func(ctx context.Context) error) (bool, error)
}
