// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scraper contains the typed adapters for external manga sources and
the circuit breaker that guards them.

Each adapter implements the [Scraper] contract and converts provider-shaped
payloads into [ScrapedSeries]/[ScrapedChapter] values. All failures leave the
package as classified [apperr.AppError] values so the queue's retry policy
and the breaker's trip policy can dispatch on kind instead of on message
text.

Trip policy: RateLimited never counts against the breaker (the limiter owns
that signal); blocked, timed-out, and schema-changed calls do.
*/
package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// # Scraper Output Contract

// ScrapedChapter is one chapter as reported by an external source.
type ScrapedChapter struct {
	// Number is the decimal chapter number (12, 12.5, ...).
	Number float64
	// Title is the source-local chapter title; nil when the source has none.
	Title *string
	// URL is the absolute reader URL on the source.
	URL string
	// Volume is the decimal volume number when the source exposes one.
	Volume *float64
	// Language is the translation language code (default "en").
	Language string
	// ScanlationGroup is the releasing group name when known.
	ScanlationGroup *string
	// PublishedAt is the source-reported publication time.
	PublishedAt *time.Time
}

// ScrapedSeries is the full series payload returned by a sync scrape.
type ScrapedSeries struct {
	SourceID      string
	Title         string
	AltTitles     []string
	ContentRating string
	CoverURL      string
	Chapters      []ScrapedChapter
}

// SearchHit is one result of a catalog search against a source.
type SearchHit struct {
	SourceID  string
	Title     string
	AltTitles []string
	CoverURL  string
	SourceURL string
}

// # Contracts

// Scraper is implemented once per external source.
type Scraper interface {
	// Name returns the lowercase source name ("mangadex").
	Name() string

	// ScrapeSeries fetches the series metadata and full chapter list for a
	// provider-local series ID.
	ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error)

	// SearchSeries queries the source catalog.
	SearchSeries(ctx context.Context, query string) ([]SearchHit, error)
}

// URLGuard validates every outbound target before a request is made. The
// SSRF allow-list implementation is owned by the platform security layer;
// this package only consumes the predicate.
type URLGuard interface {
	// Validate returns a non-nil error when the URL must not be fetched.
	Validate(rawURL string) error
}

// # Shared HTTP plumbing

// newHTTPClient builds the per-adapter client with the outbound deadline.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: constants.ScrapeTimeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// guardedURL runs the URL guard and classifies a rejection as InvalidInput.
func guardedURL(guard URLGuard, rawURL string) error {
	if err := guard.Validate(rawURL); err != nil {
		return apperr.InvalidInput(fmt.Sprintf("url rejected by guard: %s", rawURL))
	}
	return nil
}

// classifyStatus maps a non-2xx response onto the error taxonomy.
//
//   - 429: back-pressure, retryable, breaker-neutral.
//   - 401/403: WAF or proxy block, retryable, trips the breaker.
//   - 404: the series is gone at the source.
//   - 5xx: source outage; treated like a block so the breaker opens.
func classifyStatus(source string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited(fmt.Sprintf("%s returned 429", source))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.UpstreamBlocked(fmt.Sprintf("%s returned %d", source, status), nil)
	case status == http.StatusNotFound:
		return apperr.NotFound("Series on " + source)
	case status >= 500:
		return apperr.UpstreamBlocked(fmt.Sprintf("%s returned %d", source, status), nil)
	default:
		return apperr.Internal(fmt.Errorf("%s returned unexpected status %d", source, status))
	}
}

// parseChapterNumber parses a source-reported chapter or volume number.
// Oneshots and extras report "" or non-numeric labels and are skipped.
// Negative numbers pass through: some sources number prologues below zero.
func parseChapterNumber(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	number, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}

// classifyTransport maps transport-level failures (DNS, TCP, deadline) onto
// the retryable Timeout kind.
func classifyTransport(source string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return apperr.Timeout("scrape "+source, err)
	}
	return apperr.Timeout("reach "+source, err)
}
