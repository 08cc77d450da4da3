// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ingest owns the idempotent write path from scraped source payloads
into the canonical chapter catalog.

A chapter exists once per series in core.logicalchapter (keyed by series +
chapter number) and once per provider in crawler.chaptersource (keyed by
series source + logical chapter). Re-running any ingestion with the same
input is a no-op: every statement is an upsert on a natural key, and derived
fields on the series row only ever move forward.

The package exposes three entry points:

  - SyncChapters: the batch path used by sync-source jobs.
  - IngestOne: the single-chapter path used by chapter-ingest jobs; reports
    whether the logical chapter is new so notification fan-out only fires on
    genuinely new content.
  - SyncOnDemand: SyncChapters under a per-series advisory lock, for
    user-triggered refreshes racing the scheduler.
*/
package ingest

import "time"

// # Domain Types

// SeriesSource is one provider listing of a series as tracked by the crawler.
type SeriesSource struct {
	ID                 string
	SeriesID           string
	SourceName         string
	SourceID           string
	SourceURL          string
	CoverURL           *string
	TrustScore         int
	SyncPriority       string
	LastSuccessAt      *time.Time
	LastCheckedAt      *time.Time
	NextCheckAt        *time.Time
	FailureCount       int
	SourceChapterCount int
}

// Sync priority tiers for a series source.
const (
	TierHot  = "HOT"
	TierWarm = "WARM"
	TierCold = "COLD"
)

// ChapterInput is one chapter to ingest, already normalized by the scraper
// layer. Nil optional fields never overwrite known values on re-ingestion.
type ChapterInput struct {
	Number          float64
	Title           *string
	URL             string
	Volume          *float64
	Language        string
	ScanlationGroup *string
	PublishedAt     *time.Time
}

// NewChapter identifies a logical chapter created during a sync.
type NewChapter struct {
	LogicalChapterID string
	Number           float64
}

// SyncResult summarizes one completed chapter sync.
type SyncResult struct {
	// Total is how many chapters the source reported.
	Total int
	// New are the logical chapters that did not exist before this sync.
	New []NewChapter
}
