// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema declares table and column names for every table the sync
// worker touches. Query builders reference these constants instead of raw
// strings so a rename is a one-file change.
package schema

// CoreSeriesTable represents the 'core.series' table
type CoreSeriesTable struct {
	Table         string
	ID            string
	Title         string
	SeriesType    string
	ContentRating string
	LatestChapter string
	TotalFollows  string
	BestCoverURL  string
	AltTitles     string
	CreatedAt     string
	UpdatedAt     string
}

// CoreSeries is the schema definition for core.series
var CoreSeries = CoreSeriesTable{
	Table:         "core.series",
	ID:            "id",
	Title:         "title",
	SeriesType:    "seriestype",
	ContentRating: "contentrating",
	LatestChapter: "latestchapter",
	TotalFollows:  "totalfollows",
	BestCoverURL:  "bestcoverurl",
	AltTitles:     "alttitles",
	CreatedAt:     "createdat",
	UpdatedAt:     "updatedat",
}

func (t CoreSeriesTable) Columns() []string {
	return []string{
		t.ID, t.Title, t.SeriesType, t.ContentRating, t.LatestChapter, t.TotalFollows,
		t.BestCoverURL, t.AltTitles, t.CreatedAt, t.UpdatedAt,
	}
}
