// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// fakeScraper counts calls and returns a scripted error.
type fakeScraper struct {
	calls int
	err   error
}

func (f *fakeScraper) Name() string { return "fake" }

func (f *fakeScraper) ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ScrapedSeries{SourceID: sourceID, Title: "ok"}, nil
}

func (f *fakeScraper) SearchSeries(ctx context.Context, query string) ([]SearchHit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []SearchHit{{SourceID: "1", Title: query}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

/*
TestBreaker_OpensAfterConsecutiveFailures verifies the circuit opens at the
failure threshold and short-circuits subsequent calls without touching the
inner adapter.
*/
func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeScraper{err: apperr.UpstreamBlocked("fake returned 403", nil)}
	guarded := WithBreaker(inner, discardLogger())
	ctx := context.Background()

	for i := 0; i < int(constants.BreakerFailureThreshold); i++ {
		_, err := guarded.ScrapeSeries(ctx, "x")
		require.Error(t, err)
		assert.Equal(t, apperr.KindUpstreamBlocked, apperr.KindOf(err))
	}
	require.Equal(t, int(constants.BreakerFailureThreshold), inner.calls)

	// Open now: no outbound call is made and the kind flips to CircuitOpen.
	_, err := guarded.ScrapeSeries(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCircuitOpen, apperr.KindOf(err))
	assert.Equal(t, int(constants.BreakerFailureThreshold), inner.calls)
}

/*
TestBreaker_NeutralKindsDoNotTrip verifies rate-limit and caller-error
failures never open the circuit.
*/
func TestBreaker_NeutralKindsDoNotTrip(t *testing.T) {
	ctx := context.Background()

	for _, neutral := range []error{
		apperr.RateLimited("fake returned 429"),
		apperr.InvalidInput("bad id"),
		apperr.NotFound("Series on fake"),
	} {
		inner := &fakeScraper{err: neutral}
		guarded := WithBreaker(inner, discardLogger())

		for i := 0; i < 20; i++ {
			_, err := guarded.ScrapeSeries(ctx, "x")
			require.Error(t, err)
			// The original kind survives; the circuit never opens.
			assert.NotEqual(t, apperr.KindCircuitOpen, apperr.KindOf(err))
		}
		assert.Equal(t, 20, inner.calls)
	}
}

/*
TestBreaker_SuccessResetsStreak verifies a success between failures keeps the
circuit closed.
*/
func TestBreaker_SuccessResetsStreak(t *testing.T) {
	inner := &fakeScraper{}
	guarded := WithBreaker(inner, discardLogger())
	ctx := context.Background()

	fail := apperr.Timeout("scrape fake", nil)
	for round := 0; round < 3; round++ {
		inner.err = fail
		for i := 0; i < int(constants.BreakerFailureThreshold)-1; i++ {
			_, err := guarded.SearchSeries(ctx, "q")
			require.Error(t, err)
		}
		inner.err = nil
		_, err := guarded.SearchSeries(ctx, "q")
		require.NoError(t, err)
	}
}

func TestHostAllowlistGuard(t *testing.T) {
	guard := NewHostAllowlistGuard()

	testCases := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"api_host", "https://api.mangadex.org/manga/abc", true},
		{"site_host", "https://mangadex.org/title/abc", true},
		{"subdomain", "https://uploads.mangadex.org/covers/a/b.jpg", true},
		{"comick", "https://comick.io/comic/solo-leveling", true},
		{"plain_http", "http://mangadex.org/title/abc", false},
		{"unlisted_host", "https://example.com/x", false},
		{"suffix_spoof", "https://evilmangadex.org/x", false},
		{"raw_ip", "https://127.0.0.1/x", false},
		{"raw_ipv6", "https://[::1]/x", false},
		{"empty_host", "https:///path", false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := guard.Validate(testCase.url)
			if testCase.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	testCases := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusTooManyRequests, apperr.KindRateLimited},
		{http.StatusUnauthorized, apperr.KindUpstreamBlocked},
		{http.StatusForbidden, apperr.KindUpstreamBlocked},
		{http.StatusNotFound, apperr.KindNotFound},
		{http.StatusInternalServerError, apperr.KindUpstreamBlocked},
		{http.StatusBadGateway, apperr.KindUpstreamBlocked},
		{http.StatusTeapot, apperr.KindInternal},
	}

	for _, testCase := range testCases {
		err := classifyStatus("mangadex", testCase.status)
		assert.Equal(t, testCase.kind, apperr.KindOf(err), "status %d", testCase.status)
	}
}

func TestParseChapterNumber(t *testing.T) {
	number, ok := parseChapterNumber("105.5")
	require.True(t, ok)
	assert.Equal(t, 105.5, number)

	// Prologue numbering below zero is a real chapter, not a parse failure.
	number, ok = parseChapterNumber("-3")
	require.True(t, ok)
	assert.Equal(t, -3.0, number)

	_, ok = parseChapterNumber("")
	assert.False(t, ok)
	_, ok = parseChapterNumber("Oneshot")
	assert.False(t, ok)
	_, ok = parseChapterNumber("NaN")
	assert.False(t, ok)
}

/*
TestMangaDex_RejectsNonUUID verifies malformed source IDs fail pre-flight
with InvalidInput, before any outbound request.
*/
func TestMangaDex_RejectsNonUUID(t *testing.T) {
	adapter := NewMangaDex(NewHostAllowlistGuard())

	_, err := adapter.ScrapeSeries(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestComick_RejectsBadSlug(t *testing.T) {
	adapter := NewComick(NewHostAllowlistGuard())

	for _, bad := range []string{"", "UPPER", "has space", "-leading"} {
		_, err := adapter.ScrapeSeries(context.Background(), bad)
		require.Error(t, err, "slug %q", bad)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(NewHostAllowlistGuard(), discardLogger())

	assert.Equal(t, []string{"comick", "mangadex", "mangapark"}, registry.Sources())

	adapter, err := registry.Get("mangadex")
	require.NoError(t, err)
	assert.Equal(t, "mangadex", adapter.Name())

	_, err = registry.Get("unknown")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
