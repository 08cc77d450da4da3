// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/pkg/slice"
)

// Delivery audience labels, used in delivery job dedup keys.
const (
	audiencePremium = "premium"
	audienceFree    = "free"
)

/*
HandleNotificationFanout expands one new chapter into per-chunk delivery
jobs.

Description: Eligibility (entry active, notifications on, rating admitted,
chapter unread) is computed by the library store in one pass. Premium
subscribers go to the priority delivery kind in their own chunks so a large
free fan-out cannot delay them. Chunk job IDs are deterministic over the
sorted subscriber set, so a replayed fan-out regenerates the same chunks and
deduplicates against the first run.
*/
func (workers *Workers) HandleNotificationFanout(ctx context.Context, task *asynq.Task) error {
	var payload queue.FanoutPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed notification-fanout payload")
	}

	subscribers, err := workers.library.Subscribers(ctx, payload.SeriesID, payload.ChapterNumber)
	if err != nil {
		return err
	}
	if len(subscribers) == 0 {
		workers.logger.Debug("worker_fanout_empty",
			slog.String("series_id", payload.SeriesID),
			slog.Float64("chapter_number", payload.ChapterNumber),
		)
		return nil
	}

	split := func(premium bool) []string {
		ids := make([]string, 0, len(subscribers))
		for _, subscriber := range subscribers {
			if subscriber.IsPremium == premium {
				ids = append(ids, subscriber.UserID)
			}
		}
		return ids
	}

	jobs := workers.deliveryJobs(payload, split(true), constants.JobNotificationDeliveryVIP, constants.PriorityCritical, audiencePremium)
	jobs = append(jobs, workers.deliveryJobs(payload, split(false), constants.JobNotificationDelivery, constants.PriorityStandard, audienceFree)...)

	if _, err := workers.queue.AddBulk(ctx, jobs); err != nil {
		return err
	}

	workers.logger.Info("worker_fanout_completed",
		slog.String("series_id", payload.SeriesID),
		slog.Float64("chapter_number", payload.ChapterNumber),
		slog.Int("subscribers", len(subscribers)),
		slog.Int("delivery_jobs", len(jobs)),
	)
	return nil
}

// deliveryJobs chunks one audience into delivery jobs of a single kind.
func (workers *Workers) deliveryJobs(payload queue.FanoutPayload, userIDs []string, kind string, priority int, audience string) []queue.Job {
	chunks := slice.Chunk(userIDs, constants.DeliveryChunkSize)

	jobs := make([]queue.Job, 0, len(chunks))
	for index, chunk := range chunks {
		jobs = append(jobs, queue.Job{
			Kind:     kind,
			ID:       queue.DeliveryJobID(payload.LogicalChapterID, audience, index),
			Priority: priority,
			Payload: queue.DeliveryPayload{
				UserIDs:          chunk,
				SeriesID:         payload.SeriesID,
				SeriesTitle:      payload.SeriesTitle,
				LogicalChapterID: payload.LogicalChapterID,
				ChapterNumber:    payload.ChapterNumber,
			},
		})
	}
	return jobs
}
