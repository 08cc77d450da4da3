// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/ingest"
	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// HandleChapterIngest ingests one already-scraped chapter. Fan-out chains
// only when the logical chapter did not exist before, so replaying the task
// can never notify twice.
func (workers *Workers) HandleChapterIngest(ctx context.Context, task *asynq.Task) error {
	var payload queue.ChapterIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed chapter-ingest payload")
	}

	source, err := workers.ingest.Source(ctx, payload.SeriesSourceID)
	if err != nil {
		return err
	}

	created, err := workers.ingest.IngestOne(ctx, payload.SeriesSourceID, ingest.ChapterInput{
		Number:          payload.Number,
		Title:           payload.Title,
		URL:             payload.URL,
		Volume:          payload.Volume,
		Language:        payload.Language,
		ScanlationGroup: payload.ScanlationGroup,
		PublishedAt:     payload.PublishedAt,
	})
	if err != nil {
		return err
	}
	if created == nil {
		// Already known; nothing to announce.
		return nil
	}
	metrics.ChaptersIngested.Inc()

	_, err = workers.queue.Add(ctx, queue.Job{
		Kind:     constants.JobNotificationFanout,
		ID:       queue.FanoutJobID(created.LogicalChapterID),
		Priority: constants.PriorityHot,
		Payload: queue.FanoutPayload{
			SeriesID:         source.SeriesID,
			SeriesTitle:      payload.SeriesTitle,
			LogicalChapterID: created.LogicalChapterID,
			ChapterNumber:    created.Number,
		},
	})
	return err
}
