// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package queue is the thin facade over the Redis-backed task queue.

It owns the mapping from logical job priorities onto the physical priority
bands, deterministic job IDs for idempotent enqueueing, the shared retry
backoff curve, and the health/depth introspection used by the search
dispatcher and the safety monitor. Handlers never talk to the queue engine
directly; they accept payloads and return classified errors.

Duplicate suppression: a job enqueued with an ID that is still pending or
in-flight is dropped silently. This is what makes scheduler ticks and
chapter-ingest fan-in safe to replay.
*/
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// # Priority Bands

const (
	BandCritical = "critical"
	BandHigh     = "high"
	BandDefault  = "default"
	BandLow      = "low"
)

// Bands lists every band, busiest first.
var Bands = []string{BandCritical, BandHigh, BandDefault, BandLow}

// BandWeights is the server-side dequeue ratio between bands.
var BandWeights = map[string]int{
	BandCritical: 8,
	BandHigh:     4,
	BandDefault:  2,
	BandLow:      1,
}

// BandFor maps a logical priority onto a physical band.
func BandFor(priority int) string {
	switch {
	case priority <= constants.PriorityCritical:
		return BandCritical
	case priority == constants.PriorityHot:
		return BandHigh
	case priority <= constants.PriorityStandard:
		return BandDefault
	default:
		return BandLow
	}
}

// # Jobs

// Job is one unit of work handed to the queue.
type Job struct {
	// Kind selects the handler (constants.Job*).
	Kind string
	// ID is the deterministic dedup key; empty disables dedup.
	ID string
	// Payload is JSON-marshaled into the task body.
	Payload any
	// Priority is the logical priority (constants.Priority*).
	Priority int
	// Delay defers the first execution.
	Delay time.Duration
}

// SyncJobID is the dedup key for a sync-source job.
func SyncJobID(seriesSourceID string) string {
	return "sync-" + seriesSourceID
}

// SearchJobID is the dedup key for an external search dispatch.
func SearchJobID(queryHash string) string {
	return "search_" + queryHash
}

// CanonicalizeJobID is the dedup key for folding one search hit into the
// canonical catalog.
func CanonicalizeJobID(source, hitID string) string {
	return fmt.Sprintf("canon_%s_%s", source, hitID)
}

// FanoutJobID is the dedup key for the fan-out of one new logical chapter.
func FanoutJobID(logicalChapterID string) string {
	return "fanout_" + logicalChapterID
}

// DeliveryJobID is the dedup key for one delivery chunk of a fan-out.
func DeliveryJobID(logicalChapterID, audience string, chunk int) string {
	return fmt.Sprintf("deliver_%s_%s_%d", logicalChapterID, audience, chunk)
}

// CoverRefreshJobID is the dedup key for a cover refresh of one series.
func CoverRefreshJobID(seriesID string) string {
	return "cover_" + seriesID
}

// # Queue

// Queue wraps the asynq client and inspector.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// New builds the queue facade over one Redis connection.
func New(redisOpt asynq.RedisConnOpt, logger *slog.Logger) *Queue {
	return &Queue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		logger:    logger,
	}
}

// Close releases the underlying connections.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.inspector.Close()
}

/*
Add enqueues one job.

Description: The payload is JSON-marshaled, the logical priority is mapped to
a band, and the dedup ID (when set) suppresses duplicates of a job that is
still pending or running. Suppressed duplicates are not an error.

Returns:
  - (true, nil) when the job was enqueued.
  - (false, nil) when an identical job was already queued.
*/
func (q *Queue) Add(ctx context.Context, job Job) (bool, error) {
	body, err := json.Marshal(job.Payload)
	if err != nil {
		return false, apperr.Internal(fmt.Errorf("marshal %s payload: %w", job.Kind, err))
	}

	options := []asynq.Option{
		asynq.Queue(BandFor(job.Priority)),
		asynq.MaxRetry(constants.MaxJobAttempts - 1),
		asynq.Retention(constants.DeadLetterRetention),
		asynq.Timeout(constants.IngestTxTimeout + constants.ScrapeTimeout + constants.RateLimitMaxWait),
	}
	if job.ID != "" {
		options = append(options, asynq.TaskID(job.ID))
	}
	if job.Delay > 0 {
		options = append(options, asynq.ProcessIn(job.Delay))
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(job.Kind, body), options...)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		q.logger.Debug("queue_job_deduplicated",
			slog.String("kind", job.Kind),
			slog.String("job_id", job.ID),
		)
		return false, nil
	default:
		return false, apperr.TransientDB(fmt.Errorf("enqueue %s: %w", job.Kind, err))
	}
}

// AddBulk enqueues a batch, returning how many were actually added (dedup
// suppressions are not counted and not errors).
func (q *Queue) AddBulk(ctx context.Context, jobs []Job) (int, error) {
	added := 0
	for _, job := range jobs {
		ok, err := q.Add(ctx, job)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// # Retry Policy

// RetryDelay is the shared backoff curve: base delay doubled per attempt,
// capped, with up to 20% random jitter to decorrelate retry storms.
func RetryDelay(attempt int, _ error, _ *asynq.Task) time.Duration {
	delay := constants.RetryBaseDelay << attempt
	if delay > constants.RetryMaxDelay || delay <= 0 {
		delay = constants.RetryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 5))
	return delay + jitter
}

// # Introspection

// BandStats is a point-in-time snapshot of one band.
type BandStats struct {
	Band      string
	Waiting   int
	Active    int
	Archived  int
	OldestAge time.Duration
}

// Stats reads the depth of every band. Missing bands (nothing ever enqueued)
// report zero.
func (q *Queue) Stats(ctx context.Context) ([]BandStats, error) {
	stats := make([]BandStats, 0, len(Bands))
	for _, band := range Bands {
		info, err := q.inspector.GetQueueInfo(band)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				stats = append(stats, BandStats{Band: band})
				continue
			}
			return nil, apperr.TransientDB(fmt.Errorf("inspect queue %s: %w", band, err))
		}
		stats = append(stats, BandStats{
			Band:      band,
			Waiting:   info.Pending,
			Active:    info.Active,
			Archived:  info.Archived,
			OldestAge: info.Latency,
		})
	}
	return stats, nil
}

/*
Healthy reports whether the queue can absorb new external work.

Description: The search dispatcher calls this before enqueueing an external
search; an unhealthy queue turns the search into a deferral instead. The
check is bounded by a short deadline so a wedged Redis reads as unhealthy
rather than hanging the request path.
*/
func (q *Queue) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.QueuePingTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		stats, err := q.Stats(ctx)
		if err != nil {
			done <- false
			return
		}
		total := 0
		for _, band := range stats {
			total += band.Waiting
		}
		done <- total < constants.QueueHealthyMaxWaiting
	}()

	select {
	case healthy := <-done:
		return healthy
	case <-ctx.Done():
		return false
	}
}

// PruneDeadLetters deletes archived (failed-out) tasks older than the
// retention window. Called from the scheduler tick.
func (q *Queue) PruneDeadLetters(ctx context.Context) (int, error) {
	pruned := 0
	cutoff := time.Now().Add(-constants.DeadLetterRetention)

	for _, band := range Bands {
		tasks, err := q.inspector.ListArchivedTasks(band, asynq.PageSize(500))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return pruned, apperr.TransientDB(fmt.Errorf("list archived %s: %w", band, err))
		}
		for _, task := range tasks {
			if task.LastFailedAt.After(cutoff) {
				continue
			}
			if err := q.inspector.DeleteTask(band, task.ID); err != nil {
				q.logger.Warn("queue_dead_letter_prune_failed",
					slog.String("band", band),
					slog.String("task_id", task.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			pruned++
		}
	}

	if pruned > 0 {
		q.logger.Info("queue_dead_letters_pruned", slog.Int("count", pruned))
	}
	return pruned, nil
}
