// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

const mangaparkBase = "https://mangapark.io"

// mangaparkIDPattern matches provider-local paths like "12345/en-one-piece".
var mangaparkIDPattern = regexp.MustCompile(`^[0-9]+(/[a-z0-9-]+)?$`)

// chapterLabelPattern pulls the decimal number out of link text such as
// "Chapter 105.5" or "Ch.105".
var chapterLabelPattern = regexp.MustCompile(`(?i)ch(?:apter)?\.?\s*([0-9]+(?:\.[0-9]+)?)`)

// MangaPark is the HTML adapter for MangaPark. The site ships no JSON API,
// so series pages are parsed with goquery. An empty selection on a page that
// returned 200 means the markup moved and is reported as schema drift rather
// than "no chapters".
type MangaPark struct {
	client *http.Client
	guard  URLGuard
}

// NewMangaPark constructs the adapter with the shared URL guard.
func NewMangaPark(guard URLGuard) *MangaPark {
	return &MangaPark{client: newHTTPClient(), guard: guard}
}

// Name implements [Scraper].
func (p *MangaPark) Name() string { return "mangapark" }

// ScrapeSeries fetches and parses the series page at /title/{id}.
func (p *MangaPark) ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error) {
	if !mangaparkIDPattern.MatchString(sourceID) {
		return nil, apperr.InvalidInput("mangapark source id must be a title path: " + sourceID)
	}

	document, err := p.getDocument(ctx, fmt.Sprintf("%s/title/%s", mangaparkBase, sourceID))
	if err != nil {
		return nil, err
	}

	return parseMangaparkSeries(document, sourceID)
}

// parseMangaparkSeries extracts the series metadata and chapter list from a
// fetched series page.
func parseMangaparkSeries(document *goquery.Document, sourceID string) (*ScrapedSeries, error) {
	title := strings.TrimSpace(document.Find("h3 a[href^='/title/']").First().Text())
	if title == "" {
		title = strings.TrimSpace(document.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	if title == "" {
		return nil, apperr.UpstreamSchemaChanged("mangapark series page missing title node")
	}

	series := &ScrapedSeries{
		SourceID: sourceID,
		Title:    title,
		CoverURL: document.Find("meta[property='og:image']").AttrOr("content", ""),
		// MangaPark exposes no machine-readable rating; callers treat the
		// empty string as unknown.
		ContentRating: "",
	}

	document.Find("div[q\\:key='tz_2'] span").Each(func(_ int, selection *goquery.Selection) {
		if alt := strings.TrimSpace(selection.Text()); alt != "" && alt != "/" && alt != title {
			series.AltTitles = append(series.AltTitles, alt)
		}
	})

	links := document.Find("a[href*='/title/'][href*='/c']")
	if links.Length() == 0 {
		return nil, apperr.UpstreamSchemaChanged("mangapark chapter list selector matched nothing")
	}

	seen := make(map[float64]bool)
	links.Each(func(_ int, selection *goquery.Selection) {
		match := chapterLabelPattern.FindStringSubmatch(selection.Text())
		if match == nil {
			return
		}
		number, ok := parseChapterNumber(match[1])
		if !ok || seen[number] {
			return
		}
		seen[number] = true

		href := selection.AttrOr("href", "")
		chapter := ScrapedChapter{
			Number:   number,
			URL:      mangaparkBase + href,
			Language: "en",
		}
		series.Chapters = append(series.Chapters, chapter)
	})

	if len(series.Chapters) == 0 {
		return nil, apperr.UpstreamSchemaChanged("mangapark chapter links carried no parseable numbers")
	}

	return series, nil
}

// SearchSeries parses the /search results page.
func (p *MangaPark) SearchSeries(ctx context.Context, query string) ([]SearchHit, error) {
	document, err := p.getDocument(ctx, fmt.Sprintf("%s/search?word=%s", mangaparkBase, url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}

	items := document.Find("div.flex.border-b a[href^='/title/']")
	if items.Length() == 0 {
		// A zero-hit query and moved markup look the same here; only flag
		// drift when the result container itself is gone.
		if document.Find("main").Length() == 0 {
			return nil, apperr.UpstreamSchemaChanged("mangapark search page missing result container")
		}
		return nil, nil
	}

	var hits []SearchHit
	seen := make(map[string]bool)
	items.Each(func(_ int, selection *goquery.Selection) {
		href := selection.AttrOr("href", "")
		sourceID := strings.TrimPrefix(href, "/title/")
		title := strings.TrimSpace(selection.Text())
		if sourceID == "" || title == "" || seen[sourceID] {
			return
		}
		seen[sourceID] = true
		hits = append(hits, SearchHit{
			SourceID:  sourceID,
			Title:     title,
			SourceURL: mangaparkBase + href,
		})
	})
	return hits, nil
}

// getDocument performs one guarded GET and parses the body as HTML.
func (p *MangaPark) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := guardedURL(p.guard, rawURL); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	request.Header.Set("User-Agent", "yomira-sync/0.1")

	response, err := p.client.Do(request)
	if err != nil {
		return nil, classifyTransport(p.Name(), err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, classifyStatus(p.Name(), response.StatusCode)
	}

	document, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return nil, apperr.UpstreamSchemaChanged("mangapark response is not parseable HTML")
	}
	return document, nil
}
