// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import (
	"context"
	"log/slog"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/pkg/normalize"
	"github.com/taibuivan/yomira-worker/pkg/pointer"
	pkguuid "github.com/taibuivan/yomira-worker/pkg/uuid"
)

// candidateLimit bounds the fuzzy-match candidate fetch per hit.
const candidateLimit = 10

// Service orchestrates canonicalization on top of [Store].
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the catalog service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

/*
Canonicalize folds one external search hit into the catalog.

Description: Resolution runs in three passes. First the exact listing key
(source, provider ID): a known listing short-circuits everything. Then a
fuzzy pass: full-text candidates for the hit title, compared on normalized
title keys across both sides' titles and alt titles. Only when both passes
miss is a new series created. Each pass is replay-safe, so two workers
racing on the same hit converge on one series.

Returns:
  - *Listing: The listing now binding the hit's provider entry.
  - bool: Whether this call created the listing (a created listing is the
    signal to schedule a first sync).
*/
func (service *Service) Canonicalize(ctx context.Context, hit ExternalHit) (*Listing, bool, error) {

	if hit.SourceName == "" || hit.SourceID == "" || hit.Title == "" {
		return nil, false, apperr.InvalidInput("canonicalize hit missing source name, source id, or title")
	}

	// Pass 1: exact provider listing.
	existing, err := service.store.FindListing(ctx, hit.SourceName, hit.SourceID)
	if err == nil {
		return existing, false, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, false, err
	}

	// Pass 2: fuzzy title match against full-text candidates.
	seriesID, err := service.matchSeries(ctx, hit)
	if err != nil {
		return nil, false, err
	}

	// Pass 3: no match anywhere; mint a new canonical series.
	created := false
	if seriesID == "" {
		series := &Series{
			ID:            pkguuid.New(),
			Title:         hit.Title,
			SeriesType:    "manga",
			ContentRating: "safe",
			AltTitles:     hit.AltTitles,
		}
		if hit.CoverURL != "" {
			series.BestCoverURL = pointer.To(hit.CoverURL)
		}
		if err := service.store.CreateSeries(ctx, series); err != nil {
			// A concurrent canonicalization may have won the race; fall back
			// to the listing upsert, which is conflict-free either way.
			if apperr.KindOf(err) != apperr.KindConflict {
				return nil, false, err
			}
		}
		seriesID = series.ID
		created = true
	}

	listing, inserted, err := service.store.UpsertListing(ctx, NewListing{
		SeriesID:   seriesID,
		SourceName: hit.SourceName,
		SourceID:   hit.SourceID,
		SourceURL:  hit.SourceURL,
		CoverURL:   hit.CoverURL,
	})
	if err != nil {
		return nil, false, err
	}

	service.logger.Info("catalog_hit_canonicalized",
		slog.String("source", hit.SourceName),
		slog.String("source_id", hit.SourceID),
		slog.String("series_id", listing.SeriesID),
		slog.Bool("series_created", created),
		slog.Bool("listing_created", inserted),
	)

	return listing, inserted, nil
}

// matchSeries returns the ID of an existing series whose normalized title
// set intersects the hit's, or "" when nothing matches.
func (service *Service) matchSeries(ctx context.Context, hit ExternalHit) (string, error) {

	candidates, err := service.store.SearchSeries(ctx, hit.Title, candidateLimit)
	if err != nil {
		return "", err
	}

	hitKeys := normalizedKeySet(hit.Title, hit.AltTitles)
	for _, candidate := range candidates {
		for key := range normalizedKeySet(candidate.Title, candidate.AltTitles) {
			if hitKeys[key] {
				return candidate.ID, nil
			}
		}
	}

	return "", nil
}

// normalizedKeySet folds a title and its alternates into matching keys.
func normalizedKeySet(title string, alts []string) map[string]bool {
	keys := make(map[string]bool, len(alts)+1)
	if key := normalize.Title(title); key != "" {
		keys[key] = true
	}
	for _, alt := range alts {
		if key := normalize.Title(alt); key != "" {
			keys[key] = true
		}
	}
	return keys
}
