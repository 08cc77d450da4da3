// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// CoreLogicalChapterTable represents the 'core.logicalchapter' table
type CoreLogicalChapterTable struct {
	Table         string
	ID            string
	SeriesID      string
	ChapterNumber string
	ChapterTitle  string
	VolumeNumber  string
	PublishedAt   string
	FirstSeenAt   string
}

// CoreLogicalChapter is the schema definition for core.logicalchapter
var CoreLogicalChapter = CoreLogicalChapterTable{
	Table:         "core.logicalchapter",
	ID:            "id",
	SeriesID:      "seriesid",
	ChapterNumber: "chapternumber",
	ChapterTitle:  "chaptertitle",
	VolumeNumber:  "volumenumber",
	PublishedAt:   "publishedat",
	FirstSeenAt:   "firstseenat",
}

func (t CoreLogicalChapterTable) Columns() []string {
	return []string{
		t.ID, t.SeriesID, t.ChapterNumber, t.ChapterTitle, t.VolumeNumber,
		t.PublishedAt, t.FirstSeenAt,
	}
}
