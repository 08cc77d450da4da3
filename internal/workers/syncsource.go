// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/ingest"
	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/scraper"
)

/*
HandleSyncSource scrapes one series source and ingests its chapter list.

Description: The source row names the provider and the provider-local ID;
the scrape runs behind a rate-limit token and the source's circuit breaker.
A scrape failure is recorded on the source row (failure streak, exponential
backoff of the next check) before the error propagates to the retry policy.
On success the full list goes through the idempotent ingestion path, and
every genuinely new logical chapter chains one notification fan-out job.
Manual refreshes additionally take the per-series advisory lock and bow out
quietly when a concurrent sync already holds it.
*/
func (workers *Workers) HandleSyncSource(ctx context.Context, task *asynq.Task) error {
	var payload queue.SyncSourcePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed sync-source payload")
	}

	source, err := workers.ingest.Source(ctx, payload.SeriesSourceID)
	if err != nil {
		return err
	}

	if err := workers.acquireToken(ctx, source.SourceName); err != nil {
		return err
	}

	adapter, err := workers.scrapers.Get(source.SourceName)
	if err != nil {
		return err
	}

	scraped, err := adapter.ScrapeSeries(ctx, source.SourceID)
	if err != nil {
		metrics.ScrapeFailures.WithLabelValues(source.SourceName, string(apperr.KindOf(err))).Inc()
		if _, recordErr := workers.ingest.RecordFailure(ctx, source); recordErr != nil {
			workers.logger.Error("worker_sync_failure_not_recorded",
				slog.String("series_source_id", source.ID),
				slog.String("error", recordErr.Error()),
			)
		}
		return err
	}

	inputs := chapterInputs(scraped.Chapters)

	var result *ingest.SyncResult
	if payload.Manual {
		synced, ran, err := workers.ingest.SyncOnDemand(ctx, source.ID, inputs)
		if err != nil {
			return err
		}
		if !ran {
			// Another sync of this series is in flight and will pick up the
			// same chapter list.
			return nil
		}
		result = synced
	} else {
		synced, err := workers.ingest.SyncChapters(ctx, source.ID, inputs)
		if err != nil {
			return err
		}
		result = synced
	}
	metrics.ChaptersIngested.Add(float64(len(result.New)))

	if len(result.New) == 0 {
		return nil
	}

	jobs := make([]queue.Job, 0, len(result.New))
	for _, chapter := range result.New {
		jobs = append(jobs, queue.Job{
			Kind:     constants.JobNotificationFanout,
			ID:       queue.FanoutJobID(chapter.LogicalChapterID),
			Priority: constants.PriorityHot,
			Payload: queue.FanoutPayload{
				SeriesID:         source.SeriesID,
				SeriesTitle:      scraped.Title,
				LogicalChapterID: chapter.LogicalChapterID,
				ChapterNumber:    chapter.Number,
			},
		})
	}

	_, err = workers.queue.AddBulk(ctx, jobs)
	return err
}

// chapterInputs maps scraped chapters onto the ingestion contract.
func chapterInputs(chapters []scraper.ScrapedChapter) []ingest.ChapterInput {
	inputs := make([]ingest.ChapterInput, 0, len(chapters))
	for _, chapter := range chapters {
		inputs = append(inputs, ingest.ChapterInput{
			Number:          chapter.Number,
			Title:           chapter.Title,
			URL:             chapter.URL,
			Volume:          chapter.Volume,
			Language:        chapter.Language,
			ScanlationGroup: chapter.ScanlationGroup,
			PublishedAt:     chapter.PublishedAt,
		})
	}
	return inputs
}
