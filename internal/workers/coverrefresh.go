// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// HandleCoverRefresh recomputes the best cover for one series from its most
// trusted source. The update is a no-op when nothing changed.
func (workers *Workers) HandleCoverRefresh(ctx context.Context, task *asynq.Task) error {
	var payload queue.CoverRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed cover-refresh payload")
	}

	return workers.ingest.RefreshCover(ctx, payload.SeriesID)
}
