// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify persists user notifications.

The table carries a uniqueness constraint on (user, logical chapter, type),
so creation is a batch insert with ON CONFLICT DO NOTHING: no matter how
many times a delivery job replays, each user sees one notification per
chapter. The inserted count comes back from the batch so delivery logging
can distinguish fresh work from replays.
*/
package notify

import "time"

// Notification types.
const (
	TypeNewChapter = "NEW_CHAPTER"
)

// Notification is one row destined for a user's inbox.
type Notification struct {
	ID               string
	UserID           string
	NotifyType       string
	SeriesID         string
	LogicalChapterID string
	// Metadata is rendered by the API layer (series title, chapter number).
	Metadata  map[string]any
	ReadAt    *time.Time
	CreatedAt time.Time
}

// NewChapterNotification builds an unread new-chapter notification.
func NewChapterNotification(userID, seriesID, logicalChapterID string, chapterNumber float64, seriesTitle string) Notification {
	return Notification{
		UserID:           userID,
		NotifyType:       TypeNewChapter,
		SeriesID:         seriesID,
		LogicalChapterID: logicalChapterID,
		Metadata: map[string]any{
			"series_title":   seriesTitle,
			"chapter_number": chapterNumber,
		},
	}
}
