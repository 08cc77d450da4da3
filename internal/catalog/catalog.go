// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog owns the canonical series registry and the folding of
external search hits into it.

Canonicalization answers "which of our series is this provider listing?"
using two passes: an exact match on the (source, provider ID) listing key,
then a fuzzy match on normalized titles against full-text candidates. Only
when both miss is a new series created. Every path is replay-safe, so the
same search hit canonicalized twice converges on one series and one
listing.
*/
package catalog

import "time"

// # Domain Types

// Series is one canonical entry in the catalog.
type Series struct {
	ID            string
	Title         string
	SeriesType    string
	ContentRating string
	LatestChapter *float64
	TotalFollows  int
	BestCoverURL  *string
	AltTitles     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Listing is the crawler's link between a series and one provider.
type Listing struct {
	ID       string
	SeriesID string
}

// ExternalHit is one provider search result to fold into the catalog.
type ExternalHit struct {
	SourceName string
	SourceID   string
	Title      string
	AltTitles  []string
	CoverURL   string
	SourceURL  string
}

// sourceTrustScores ranks providers for cover selection and conflict
// resolution. Unknown sources get a conservative default.
var sourceTrustScores = map[string]int{
	"mangadex":  10,
	"comick":    8,
	"mangapark": 6,
	"mangasee":  5,
}

const defaultTrustScore = 4

// TrustScore returns the trust rank for a source name.
func TrustScore(source string) int {
	if score, found := sourceTrustScores[source]; found {
		return score
	}
	return defaultTrustScore
}
