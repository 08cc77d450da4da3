// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// CrawlerChapterSourceTable represents the 'crawler.chaptersource' table
type CrawlerChapterSourceTable struct {
	Table             string
	ID                string
	SeriesSourceID    string
	ChapterID         string
	ChapterURL        string
	ChapterTitle      string
	ScanlationGroup   string
	Language          string
	SourcePublishedAt string
	DiscoveredAt      string
	IsAvailable       string
}

// CrawlerChapterSource is the schema definition for crawler.chaptersource
var CrawlerChapterSource = CrawlerChapterSourceTable{
	Table:             "crawler.chaptersource",
	ID:                "id",
	SeriesSourceID:    "seriessourceid",
	ChapterID:         "chapterid",
	ChapterURL:        "chapterurl",
	ChapterTitle:      "chaptertitle",
	ScanlationGroup:   "scanlationgroup",
	Language:          "language",
	SourcePublishedAt: "sourcepublishedat",
	DiscoveredAt:      "discoveredat",
	IsAvailable:       "isavailable",
}

func (t CrawlerChapterSourceTable) Columns() []string {
	return []string{
		t.ID, t.SeriesSourceID, t.ChapterID, t.ChapterURL, t.ChapterTitle,
		t.ScanlationGroup, t.Language, t.SourcePublishedAt, t.DiscoveredAt, t.IsAvailable,
	}
}
