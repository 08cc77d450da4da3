// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/scraper"
	"github.com/taibuivan/yomira-worker/internal/search"
)

var errNoSources = errors.New("no scraper sources registered")

/*
HandleCheckSource runs one external catalog search across every registered
source and publishes the merged result set.

Description: Each source is searched behind its own rate-limit token; a
source that cannot be reached (token exhausted, breaker open, upstream
failure) is skipped rather than failing the whole task. As long as at least
one source answered, the merged hits are published under the query hash
(releasing coalesced waiters) and one canonicalize job per hit is enqueued.
Only when every source failed does the task itself fail, carrying the last
classified error so the retry policy can decide.

A premium user's concurrency slot is released once the task reaches a final
outcome; retryable failures keep the slot so the retry does not race a fresh
dispatch from the same user.
*/
func (workers *Workers) HandleCheckSource(ctx context.Context, task *asynq.Task) error {
	var payload queue.CheckSourcePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed check-source payload")
	}

	err := workers.checkSources(ctx, payload)

	if payload.IsPremium && payload.UserID != "" && (err == nil || !apperr.IsRetryable(err)) {
		releaseCtx := context.WithoutCancel(ctx)
		if releaseErr := workers.results.ReleasePremiumSlot(releaseCtx, payload.UserID); releaseErr != nil {
			workers.logger.Warn("worker_premium_slot_release_failed",
				slog.String("user_id", payload.UserID),
				slog.String("error", releaseErr.Error()),
			)
		}
	}

	return err
}

// sourceOutcome is one source's answer to a fan-out search. Exactly one of
// hits and err is meaningful.
type sourceOutcome struct {
	hits []scraper.SearchHit
	err  error
}

func (workers *Workers) checkSources(ctx context.Context, payload queue.CheckSourcePayload) error {
	sources := workers.scrapers.Sources()
	outcomes := make([]sourceOutcome, len(sources))

	// Fan out to every source concurrently. Each adapter sits behind its own
	// rate-limit token and breaker, so a slow source only delays its own slot.
	// Source-level failures are recorded per slot; only caller cancellation
	// aborts the group.
	group, groupCtx := errgroup.WithContext(ctx)
	for index, source := range sources {
		group.Go(func() error {
			outcomes[index] = workers.searchOne(groupCtx, source, payload.Query)
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var (
		merged    []search.Hit
		canonJobs []queue.Job
		lastErr   error
		answered  int
	)

	// Merge in registry order so replayed tasks produce identical job sets.
	for index, source := range sources {
		if err := outcomes[index].err; err != nil {
			lastErr = err
			continue
		}
		answered++

		for _, hit := range outcomes[index].hits {
			merged = append(merged, search.Hit{
				Title:      hit.Title,
				CoverURL:   hit.CoverURL,
				SourceName: source,
				SourceURL:  hit.SourceURL,
			})
			canonJobs = append(canonJobs, queue.Job{
				Kind:     constants.JobCanonicalize,
				ID:       queue.CanonicalizeJobID(source, hit.SourceID),
				Priority: constants.PriorityStandard,
				Payload: queue.CanonicalizePayload{
					SourceName: source,
					SourceID:   hit.SourceID,
					Title:      hit.Title,
					AltTitles:  hit.AltTitles,
					CoverURL:   hit.CoverURL,
					SourceURL:  hit.SourceURL,
				},
			})
		}
	}

	if answered == 0 {
		if lastErr != nil {
			return lastErr
		}
		return apperr.Internal(errNoSources)
	}

	// Publishing an empty set is still a result: it caches the miss briefly
	// and clears the pending marker for coalesced waiters.
	if err := workers.results.PublishResults(ctx, payload.QueryHash, merged); err != nil {
		return err
	}

	if _, err := workers.queue.AddBulk(ctx, canonJobs); err != nil {
		return err
	}

	workers.logger.Info("worker_check_source_completed",
		slog.String("query_hash", payload.QueryHash),
		slog.Int("sources_answered", answered),
		slog.Int("hits", len(merged)),
	)
	return nil
}

// searchOne queries a single source behind its rate-limit token. Failures are
// returned as the outcome, never propagated, so sibling sources keep going.
func (workers *Workers) searchOne(ctx context.Context, source, query string) sourceOutcome {
	adapter, err := workers.scrapers.Get(source)
	if err != nil {
		return sourceOutcome{err: err}
	}

	if err := workers.acquireToken(ctx, source); err != nil {
		workers.logger.Warn("worker_check_source_skipped",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return sourceOutcome{err: err}
	}

	hits, err := adapter.SearchSeries(ctx, query)
	if err != nil {
		metrics.ScrapeFailures.WithLabelValues(source, string(apperr.KindOf(err))).Inc()
		workers.logger.Warn("worker_check_source_failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return sourceOutcome{err: err}
	}

	return sourceOutcome{hits: hits}
}
