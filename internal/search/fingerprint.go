// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/taibuivan/yomira-worker/pkg/normalize"
)

// Filters narrows a search beyond the query text. They participate in the
// fingerprint because "naruto" at rating safe and rating erotica are
// different cacheable questions.
type Filters struct {
	// MaxRating caps the content rating of returned series.
	MaxRating string
	// SeriesType restricts to manga/manhwa/manhua when set.
	SeriesType string
}

/*
Fingerprint derives the canonical hash for a query + filter combination.

Description: The query is folded through the title normalizer first, so
"Solo  Leveling!" and "solo leveling" coalesce onto one cache entry, one
heat counter, and one dedup job ID. The hash is hex SHA-256 truncated to 16
characters, which is plenty for a keyspace that expires within hours.
*/
func Fingerprint(query string, filters Filters) string {
	canonical := normalize.Title(query) + "\x00" + filters.MaxRating + "\x00" + filters.SeriesType
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}
