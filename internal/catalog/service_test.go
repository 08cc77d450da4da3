// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

// fakeStore is an in-memory [Store].
type fakeStore struct {
	listings map[string]*Listing // key: source/sourceID
	series   []*Series
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: make(map[string]*Listing)}
}

func listingKey(sourceName, sourceID string) string {
	return sourceName + "/" + sourceID
}

func (f *fakeStore) FindListing(ctx context.Context, sourceName, sourceID string) (*Listing, error) {
	listing, found := f.listings[listingKey(sourceName, sourceID)]
	if !found {
		return nil, apperr.NotFound("Listing")
	}
	return listing, nil
}

func (f *fakeStore) SearchSeries(ctx context.Context, query string, limit int) ([]*Series, error) {
	// The fake returns every series; matching happens on normalized keys in
	// the service, which is what these tests exercise.
	if len(f.series) > limit {
		return f.series[:limit], nil
	}
	return f.series, nil
}

func (f *fakeStore) CreateSeries(ctx context.Context, series *Series) error {
	f.series = append(f.series, series)
	return nil
}

func (f *fakeStore) UpsertListing(ctx context.Context, listing NewListing) (*Listing, bool, error) {
	key := listingKey(listing.SourceName, listing.SourceID)
	if existing, found := f.listings[key]; found {
		return existing, false, nil
	}
	created := &Listing{ID: "listing-" + key, SeriesID: listing.SeriesID}
	f.listings[key] = created
	return created, true, nil
}

func newTestService(store Store) *Service {
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCanonicalize_RejectsIncompleteHit(t *testing.T) {
	service := newTestService(newFakeStore())

	_, _, err := service.Canonicalize(context.Background(), ExternalHit{SourceName: "mangadex"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestCanonicalize_KnownListingShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.listings["mangadex/abc"] = &Listing{ID: "l1", SeriesID: "s1"}
	service := newTestService(store)

	listing, created, err := service.Canonicalize(context.Background(), ExternalHit{
		SourceName: "mangadex", SourceID: "abc", Title: "Solo Leveling",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "s1", listing.SeriesID)
	assert.Empty(t, store.series, "no series should be created")
}

/*
TestCanonicalize_FuzzyTitleMatch verifies a hit whose normalized title
matches an existing series (including via alt titles) links to it instead
of creating a duplicate.
*/
func TestCanonicalize_FuzzyTitleMatch(t *testing.T) {
	store := newFakeStore()
	store.series = []*Series{
		{ID: "s1", Title: "Ore dake Level Up na Ken", AltTitles: []string{"Solo Leveling"}},
	}
	service := newTestService(store)

	listing, created, err := service.Canonicalize(context.Background(), ExternalHit{
		SourceName: "comick", SourceID: "00-solo-leveling", Title: "SOLO  Leveling",
	})
	require.NoError(t, err)
	assert.True(t, created, "the listing is new even though the series is not")
	assert.Equal(t, "s1", listing.SeriesID)
	assert.Len(t, store.series, 1, "no duplicate series")
}

func TestCanonicalize_UnmatchedHitCreatesSeries(t *testing.T) {
	store := newFakeStore()
	service := newTestService(store)

	listing, created, err := service.Canonicalize(context.Background(), ExternalHit{
		SourceName: "mangadex",
		SourceID:   "11111111-2222-3333-4444-555555555555",
		Title:      "Frieren: Beyond Journey's End",
		AltTitles:  []string{"葬送のフリーレン"},
		CoverURL:   "https://uploads.mangadex.org/covers/x/y.jpg",
	})
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, store.series, 1)
	assert.Equal(t, store.series[0].ID, listing.SeriesID)
	assert.Equal(t, "Frieren: Beyond Journey's End", store.series[0].Title)
	require.NotNil(t, store.series[0].BestCoverURL)
}

/*
TestCanonicalize_ReplayConverges verifies canonicalizing the same hit twice
yields the same listing and exactly one series.
*/
func TestCanonicalize_ReplayConverges(t *testing.T) {
	store := newFakeStore()
	service := newTestService(store)

	hit := ExternalHit{SourceName: "mangapark", SourceID: "12345", Title: "Omniscient Reader"}

	first, createdFirst, err := service.Canonicalize(context.Background(), hit)
	require.NoError(t, err)
	require.True(t, createdFirst)

	second, createdSecond, err := service.Canonicalize(context.Background(), hit)
	require.NoError(t, err)
	assert.False(t, createdSecond)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.series, 1)
}

func TestTrustScore(t *testing.T) {
	assert.Equal(t, 10, TrustScore("mangadex"))
	assert.Equal(t, 8, TrustScore("comick"))
	assert.Equal(t, 4, TrustScore("somethingnew"))
}
