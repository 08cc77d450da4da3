// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// LibraryEntryTable represents the 'library.entry' table
type LibraryEntryTable struct {
	Table             string
	ID                string
	UserID            string
	SeriesID          string
	Status            string
	NotifyNewChapters string
	PreferredSource   string
	LastReadChapter   string
	CreatedAt         string
	UpdatedAt         string
}

// LibraryEntry is the schema definition for library.entry
var LibraryEntry = LibraryEntryTable{
	Table:             "library.entry",
	ID:                "id",
	UserID:            "userid",
	SeriesID:          "seriesid",
	Status:            "status",
	NotifyNewChapters: "notifynewchapters",
	PreferredSource:   "preferredsource",
	LastReadChapter:   "lastreadchapter",
	CreatedAt:         "createdat",
	UpdatedAt:         "updatedat",
}

func (t LibraryEntryTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.SeriesID, t.Status, t.NotifyNewChapters,
		t.PreferredSource, t.LastReadChapter, t.CreatedAt, t.UpdatedAt,
	}
}
