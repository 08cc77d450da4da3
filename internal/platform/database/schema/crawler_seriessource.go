// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// CrawlerSeriesSourceTable represents the 'crawler.seriessource' table
type CrawlerSeriesSourceTable struct {
	Table              string
	ID                 string
	SeriesID           string
	SourceName         string
	SourceID           string
	SourceURL          string
	CoverURL           string
	TrustScore         string
	SyncPriority       string
	LastSuccessAt      string
	LastCheckedAt      string
	NextCheckAt        string
	FailureCount       string
	SourceChapterCount string
	CreatedAt          string
	UpdatedAt          string
}

// CrawlerSeriesSource is the schema definition for crawler.seriessource
var CrawlerSeriesSource = CrawlerSeriesSourceTable{
	Table:              "crawler.seriessource",
	ID:                 "id",
	SeriesID:           "seriesid",
	SourceName:         "sourcename",
	SourceID:           "sourceid",
	SourceURL:          "sourceurl",
	CoverURL:           "coverurl",
	TrustScore:         "trustscore",
	SyncPriority:       "syncpriority",
	LastSuccessAt:      "lastsuccessat",
	LastCheckedAt:      "lastcheckedat",
	NextCheckAt:        "nextcheckat",
	FailureCount:       "failurecount",
	SourceChapterCount: "sourcechaptercount",
	CreatedAt:          "createdat",
	UpdatedAt:          "updatedat",
}

func (t CrawlerSeriesSourceTable) Columns() []string {
	return []string{
		t.ID, t.SeriesID, t.SourceName, t.SourceID, t.SourceURL, t.CoverURL,
		t.TrustScore, t.SyncPriority, t.LastSuccessAt, t.LastCheckedAt,
		t.NextCheckAt, t.FailureCount, t.SourceChapterCount, t.CreatedAt, t.UpdatedAt,
	}
}
