// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-worker/internal/metrics"
	"github.com/taibuivan/yomira-worker/internal/notify"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

/*
HandleNotificationDelivery persists notifications for one chunk of users.
Both the standard and premium delivery kinds route here; the split only
affects which priority band the chunk rides.

Description: The unread check from fan-out runs again first, dropping users
who read the chapter in the window between the two jobs. The insert itself
skips rows that already exist on the (user, chapter, type) key, so a chunk
replayed after a partial failure finishes the remainder without
double-notifying anyone.
*/
func (workers *Workers) HandleNotificationDelivery(ctx context.Context, task *asynq.Task) error {
	var payload queue.DeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return apperr.InvalidInput("malformed notification-delivery payload")
	}
	if len(payload.UserIDs) == 0 {
		return nil
	}

	unread, err := workers.library.FilterUnread(ctx, payload.UserIDs, payload.SeriesID, payload.ChapterNumber)
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	notifications := make([]notify.Notification, 0, len(unread))
	for _, userID := range unread {
		notifications = append(notifications, notify.NewChapterNotification(
			userID,
			payload.SeriesID,
			payload.LogicalChapterID,
			payload.ChapterNumber,
			payload.SeriesTitle,
		))
	}

	inserted, err := workers.notify.CreateBatch(ctx, notifications)
	if err != nil {
		return err
	}
	metrics.NotificationsCreated.Add(float64(inserted))

	workers.logger.Info("worker_delivery_completed",
		slog.String("series_id", payload.SeriesID),
		slog.Float64("chapter_number", payload.ChapterNumber),
		slog.Int("chunk_size", len(payload.UserIDs)),
		slog.Int("still_unread", len(unread)),
		slog.Int("inserted", inserted),
	)
	return nil
}
