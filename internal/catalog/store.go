// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import "context"

// NewListing carries everything needed to register a provider listing.
type NewListing struct {
	SeriesID   string
	SourceName string
	SourceID   string
	SourceURL  string
	CoverURL   string
}

// Store defines the data access contract for the catalog domain.
type Store interface {
	// FindListing returns the listing for a (source, provider ID) pair.
	//
	// It returns apperr.NotFound when the provider listing is unknown.
	FindListing(ctx context.Context, sourceName, sourceID string) (*Listing, error)

	// SearchSeries runs a full-text search over titles and alt titles.
	//
	// Returns:
	//   - []*Series: Candidates ordered by relevance, capped at limit.
	SearchSeries(ctx context.Context, query string, limit int) ([]*Series, error)

	// CreateSeries persists a new canonical series. The caller sets the ID.
	CreateSeries(ctx context.Context, series *Series) error

	// UpsertListing registers a provider listing, updating the cover and URL
	// on replay.
	//
	// Returns:
	//   - *Listing: The listing row (existing or created).
	//   - bool: Whether the listing was created by this call.
	UpsertListing(ctx context.Context, listing NewListing) (*Listing, bool, error)
}
