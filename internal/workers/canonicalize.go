// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// HandleCanonicalize folds one external search hit into the canonical
// catalog. A listing created by this call is the trigger for its first full
// sync, so a sync-source job is chained; an already-known listing ends the
// pipeline here.
func (workers *Workers) HandleCanonicalize(ctx context.Context, task *asynq.Task) error {
	var payload queue.CanonicalizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed canonicalize payload")
	}

	listing, created, err := workers.catalog.Canonicalize(ctx, catalog.ExternalHit{
		SourceName: payload.SourceName,
		SourceID:   payload.SourceID,
		Title:      payload.Title,
		AltTitles:  payload.AltTitles,
		CoverURL:   payload.CoverURL,
		SourceURL:  payload.SourceURL,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	_, err = workers.queue.Add(ctx, queue.Job{
		Kind:     constants.JobSyncSource,
		ID:       queue.SyncJobID(listing.ID),
		Priority: constants.PriorityWarm,
		Payload:  queue.SyncSourcePayload{SeriesSourceID: listing.ID},
	})
	return err
}
