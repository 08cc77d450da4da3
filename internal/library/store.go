// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import "context"

// Store defines the data access contract for the library domain.
type Store interface {
	// Subscribers returns the users eligible for a new-chapter notification
	// on a series: entry not dropped, notifications on, content rating
	// admitted by the account ceiling, chapter not already read.
	Subscribers(ctx context.Context, seriesID string, chapterNumber float64) ([]Subscriber, error)

	// FilterUnread narrows a user batch to those who still have not read
	// the chapter. Delivery calls this to drop users who read the chapter
	// between fan-out and delivery.
	FilterUnread(ctx context.Context, userIDs []string, seriesID string, chapterNumber float64) ([]string, error)

	// AddEntry creates a follow entry, keeping the series follower count in
	// step. Re-following is a no-op.
	//
	// Returns:
	//   - bool: Whether a new entry was actually created.
	AddEntry(ctx context.Context, userID, seriesID string) (bool, error)

	// RemoveEntry deletes a follow entry, keeping the follower count in
	// step. Removing an absent entry is a no-op.
	RemoveEntry(ctx context.Context, userID, seriesID string) (bool, error)

	// MarkRead records a chapter as read and rolls the entry's last-read
	// watermark forward. Replays are no-ops.
	MarkRead(ctx context.Context, userID, seriesID string, chapterNumber float64) error
}
