// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package library manages user follow entries and answers the one question the
notification pipeline keeps asking: who should hear about this chapter?

Eligibility is computed in the database in a single pass. A user is a
subscriber of a new chapter when their entry is not dropped, has
notifications enabled, their account's content-rating ceiling admits the
series, and they have not already read that chapter number. The read check
runs twice, once at fan-out and once again at delivery, because a user can
finish a chapter in the window between the two.
*/
package library

import "time"

// # Domain Types

// Entry statuses. Dropped entries stay in the library but never notify.
const (
	StatusReading   = "reading"
	StatusCompleted = "completed"
	StatusPlanning  = "planning"
	StatusDropped   = "dropped"
	StatusPaused    = "paused"
)

// Entry is one series in one user's library.
type Entry struct {
	ID                string
	UserID            string
	SeriesID          string
	Status            string
	NotifyNewChapters bool
	PreferredSource   *string
	LastReadChapter   *float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscriber is a user eligible for a new-chapter notification, with the
// premium flag that routes them to the priority delivery band.
type Subscriber struct {
	UserID    string
	IsPremium bool
}
