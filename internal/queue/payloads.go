// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import "time"

// Task payload contracts. They live here, next to the queue facade, because
// both producers (dispatcher, scheduler) and consumers (worker handlers)
// need them without depending on each other.

// CheckSourcePayload asks a worker to run an external catalog search and
// fold the hits into the canonical catalog.
type CheckSourcePayload struct {
	Query     string `json:"query"`
	QueryHash string `json:"query_hash"`
	UserID    string `json:"user_id,omitempty"`
	IsPremium bool   `json:"is_premium,omitempty"`
}

// CanonicalizePayload folds one external search hit into the catalog.
type CanonicalizePayload struct {
	SourceName string   `json:"source_name"`
	SourceID   string   `json:"source_id"`
	Title      string   `json:"title"`
	AltTitles  []string `json:"alt_titles,omitempty"`
	CoverURL   string   `json:"cover_url,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
}

// SyncSourcePayload asks a worker to scrape and ingest one series source.
// Manual marks a user-triggered refresh, which runs under the per-series
// advisory lock so it cannot race a scheduled sync of the same series.
type SyncSourcePayload struct {
	SeriesSourceID string `json:"series_source_id"`
	Manual         bool   `json:"manual,omitempty"`
}

// ChapterIngestPayload ingests a single already-scraped chapter.
type ChapterIngestPayload struct {
	SeriesSourceID  string     `json:"series_source_id"`
	SeriesTitle     string     `json:"series_title,omitempty"`
	Number          float64    `json:"number"`
	Title           *string    `json:"title,omitempty"`
	URL             string     `json:"url"`
	Volume          *float64   `json:"volume,omitempty"`
	Language        string     `json:"language"`
	ScanlationGroup *string    `json:"scanlation_group,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// FanoutPayload expands one new chapter into per-chunk delivery jobs.
type FanoutPayload struct {
	SeriesID         string  `json:"series_id"`
	SeriesTitle      string  `json:"series_title"`
	LogicalChapterID string  `json:"logical_chapter_id"`
	ChapterNumber    float64 `json:"chapter_number"`
}

// DeliveryPayload persists notifications for one chunk of users.
type DeliveryPayload struct {
	UserIDs          []string `json:"user_ids"`
	SeriesID         string   `json:"series_id"`
	SeriesTitle      string   `json:"series_title"`
	LogicalChapterID string   `json:"logical_chapter_id"`
	ChapterNumber    float64  `json:"chapter_number"`
}

// CoverRefreshPayload recomputes the best cover for one series.
type CoverRefreshPayload struct {
	SeriesID string `json:"series_id"`
}
