// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// Service orchestrates chapter ingestion on top of [Store].
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the ingestion service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

/*
SyncChapters ingests a full scraped chapter list for one series source.

Description: Chapters are committed in bounded batches, each inside its own
deadline-capped transaction, so one giant backlist cannot hold row locks for
the whole sync. After the data lands the source row is finalized (success
timestamps, failure streak reset, reported chapter count) and the series
watermark and cover are refreshed. The entire operation is idempotent:
replaying the same payload creates nothing and reports zero new chapters.

Parameters:
  - sourceID: The crawler.seriessource row being synced.
  - chapters: The normalized chapter list from the scraper.

Returns:
  - *SyncResult: Total seen and the logical chapters that are genuinely new.
  - error: apperr.NotFound for an unknown source, classified errors otherwise.
*/
func (service *Service) SyncChapters(ctx context.Context, sourceID string, chapters []ChapterInput) (*SyncResult, error) {

	source, err := service.store.FindSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Total: len(chapters)}

	// A transiently empty scrape must not clobber the recorded chapter count
	// or stamp a success the source did not earn.
	if len(chapters) == 0 {
		return result, nil
	}

	// Batched ingestion
	maxNumber := chapters[0].Number
	for start := 0; start < len(chapters); start += constants.IngestBatchSize {
		end := min(start+constants.IngestBatchSize, len(chapters))
		batch := chapters[start:end]

		batchCtx, cancel := context.WithTimeout(ctx, constants.IngestTxTimeout)
		created, err := service.store.IngestBatch(batchCtx, source, batch)
		cancel()
		if err != nil {
			return nil, err
		}

		result.New = append(result.New, created...)
		for _, chapter := range batch {
			if chapter.Number > maxNumber {
				maxNumber = chapter.Number
			}
		}
	}

	if err := service.store.AdvanceLatestChapter(ctx, source.SeriesID, maxNumber); err != nil {
		return nil, err
	}

	if err := service.store.FinalizeSync(ctx, sourceID, len(chapters), service.nextCheckAfter(source.SyncPriority)); err != nil {
		return nil, err
	}

	// Cover refresh is cosmetic; a flaky read here must not fail the sync.
	if err := retry.Do(
		func() error { return service.store.RefreshBestCover(ctx, source.SeriesID) },
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	); err != nil {
		service.logger.Warn("ingest_cover_refresh_failed",
			slog.String("series_id", source.SeriesID),
			slog.String("error", err.Error()),
		)
	}

	service.logger.Info("ingest_sync_completed",
		slog.String("series_source_id", sourceID),
		slog.String("source", source.SourceName),
		slog.Int("chapters_seen", result.Total),
		slog.Int("chapters_new", len(result.New)),
	)

	return result, nil
}

/*
IngestOne ingests a single chapter for a series source.

Returns:
  - *NewChapter: Non-nil only when the logical chapter did not exist before,
    which is the signal that notification fan-out should fire.
*/
func (service *Service) IngestOne(ctx context.Context, sourceID string, chapter ChapterInput) (*NewChapter, error) {

	source, err := service.store.FindSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	batchCtx, cancel := context.WithTimeout(ctx, constants.IngestTxTimeout)
	created, err := service.store.IngestBatch(batchCtx, source, []ChapterInput{chapter})
	cancel()
	if err != nil {
		return nil, err
	}

	if err := service.store.AdvanceLatestChapter(ctx, source.SeriesID, chapter.Number); err != nil {
		return nil, err
	}

	if len(created) == 0 {
		return nil, nil
	}
	return &created[0], nil
}

/*
SyncOnDemand runs SyncChapters under the per-series advisory lock.

Description: User-triggered refreshes race the scheduler for the same
series. The advisory lock makes the race harmless: whoever loses simply
reports that a sync is already in progress.

Returns:
  - *SyncResult: The sync outcome, nil when the lock was contended.
  - bool: Whether this call actually ran the sync.
*/
func (service *Service) SyncOnDemand(ctx context.Context, sourceID string, chapters []ChapterInput) (*SyncResult, bool, error) {

	source, err := service.store.FindSource(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}

	var result *SyncResult
	ran, err := service.store.WithSeriesLock(ctx, source.SeriesID, func(ctx context.Context) error {
		var syncErr error
		result, syncErr = service.SyncChapters(ctx, sourceID, chapters)
		return syncErr
	})
	if err != nil {
		return nil, ran, err
	}
	if !ran {
		service.logger.Info("ingest_on_demand_skipped",
			slog.String("series_source_id", sourceID),
			slog.String("series_id", source.SeriesID),
		)
		return nil, false, nil
	}

	return result, true, nil
}

/*
RecordFailure marks a failed check on the source row and backs its schedule
off exponentially, capped at the cold-tier interval.

Returns:
  - int: The failure streak length after this failure.
*/
func (service *Service) RecordFailure(ctx context.Context, source *SeriesSource) (int, error) {

	shift := min(source.FailureCount, 10)
	backoff := constants.SyncIntervalHot << shift
	if backoff > constants.SyncIntervalCold {
		backoff = constants.SyncIntervalCold
	}

	failures, err := service.store.RecordFailure(ctx, source.ID, time.Now().Add(backoff))
	if err != nil {
		return 0, err
	}

	service.logger.Warn("ingest_source_check_failed",
		slog.String("series_source_id", source.ID),
		slog.String("source", source.SourceName),
		slog.Int("failure_count", failures),
		slog.Duration("backoff", backoff),
	)

	return failures, nil
}

// Source returns the series source row by ID.
func (service *Service) Source(ctx context.Context, sourceID string) (*SeriesSource, error) {
	return service.store.FindSource(ctx, sourceID)
}

// RefreshCover recomputes the series cover from its most trusted source.
func (service *Service) RefreshCover(ctx context.Context, seriesID string) error {
	return service.store.RefreshBestCover(ctx, seriesID)
}

// nextCheckAfter maps a sync tier onto its next scheduled check time.
func (service *Service) nextCheckAfter(tier string) time.Time {
	switch tier {
	case TierHot:
		return time.Now().Add(constants.SyncIntervalHot)
	case TierWarm:
		return time.Now().Add(constants.SyncIntervalWarm)
	default:
		return time.Now().Add(constants.SyncIntervalCold)
	}
}
