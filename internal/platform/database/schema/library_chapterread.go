// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// LibraryChapterReadTable represents the 'library.chapterread' table
type LibraryChapterReadTable struct {
	Table         string
	UserID        string
	SeriesID      string
	ChapterNumber string
	ReadAt        string
}

// LibraryChapterRead is the schema definition for library.chapterread
var LibraryChapterRead = LibraryChapterReadTable{
	Table:         "library.chapterread",
	UserID:        "userid",
	SeriesID:      "seriesid",
	ChapterNumber: "chapternumber",
	ReadAt:        "readat",
}

func (t LibraryChapterReadTable) Columns() []string {
	return []string{t.UserID, t.SeriesID, t.ChapterNumber, t.ReadAt}
}
