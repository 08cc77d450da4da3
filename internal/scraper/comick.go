// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

const (
	comickAPIBase  = "https://api.comick.io"
	comickSiteBase = "https://comick.io"
)

// comickSlugPattern matches provider-local comic slugs ("00-solo-leveling").
var comickSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,127}$`)

// Comick is the adapter for the Comick JSON API. Series are addressed by
// slug rather than UUID.
type Comick struct {
	client *http.Client
	guard  URLGuard
}

// NewComick constructs the adapter with the shared URL guard.
func NewComick(guard URLGuard) *Comick {
	return &Comick{client: newHTTPClient(), guard: guard}
}

// Name implements [Scraper].
func (c *Comick) Name() string { return "comick" }

// # Wire Shapes

type comickComic struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CoverURL  string `json:"cover_url"`
	MDTitles  []struct {
		Title string `json:"title"`
	} `json:"md_titles"`
	ContentRating string `json:"content_rating"`
}

type comickChapter struct {
	HID        string     `json:"hid"`
	Chap       string     `json:"chap"`
	Title      *string    `json:"title"`
	Vol        *string    `json:"vol"`
	Lang       string     `json:"lang"`
	GroupName  []string   `json:"group_name"`
	CreatedAt  *time.Time `json:"created_at"`
}

// # Operations

// ScrapeSeries fetches /comic/{slug} for metadata and /comic/{slug}/chapters
// for the English chapter list.
func (c *Comick) ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error) {
	if !comickSlugPattern.MatchString(sourceID) {
		return nil, apperr.InvalidInput("comick source id must be a slug: " + sourceID)
	}

	var comicEnvelope struct {
		Comic comickComic `json:"comic"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/comic/%s", comickAPIBase, sourceID), &comicEnvelope); err != nil {
		return nil, err
	}
	if comicEnvelope.Comic.Title == "" {
		return nil, apperr.UpstreamSchemaChanged("comick comic payload missing title")
	}

	series := &ScrapedSeries{
		SourceID:      sourceID,
		Title:         comicEnvelope.Comic.Title,
		ContentRating: comickRating(comicEnvelope.Comic.ContentRating),
		CoverURL:      comicEnvelope.Comic.CoverURL,
	}
	for _, alt := range comicEnvelope.Comic.MDTitles {
		if alt.Title != "" && alt.Title != series.Title {
			series.AltTitles = append(series.AltTitles, alt.Title)
		}
	}

	var chaptersEnvelope struct {
		Chapters []comickChapter `json:"chapters"`
	}
	chaptersURL := fmt.Sprintf("%s/comic/%s/chapters?lang=en&limit=500", comickAPIBase, sourceID)
	if err := c.getJSON(ctx, chaptersURL, &chaptersEnvelope); err != nil {
		return nil, err
	}

	for _, raw := range chaptersEnvelope.Chapters {
		number, ok := parseChapterNumber(raw.Chap)
		if !ok {
			continue
		}

		chapter := ScrapedChapter{
			Number:      number,
			Title:       raw.Title,
			URL:         fmt.Sprintf("%s/comic/%s/%s", comickSiteBase, sourceID, raw.HID),
			Language:    orDefault(raw.Lang, "en"),
			PublishedAt: raw.CreatedAt,
		}
		if raw.Vol != nil {
			if volume, ok := parseChapterNumber(*raw.Vol); ok {
				chapter.Volume = &volume
			}
		}
		if len(raw.GroupName) > 0 && raw.GroupName[0] != "" {
			group := raw.GroupName[0]
			chapter.ScanlationGroup = &group
		}

		series.Chapters = append(series.Chapters, chapter)
	}

	return series, nil
}

// SearchSeries implements [Scraper] against /v1.0/search.
func (c *Comick) SearchSeries(ctx context.Context, query string) ([]SearchHit, error) {
	searchURL := fmt.Sprintf("%s/v1.0/search?q=%s&limit=10", comickAPIBase, url.QueryEscape(query))

	var results []comickComic
	if err := c.getJSON(ctx, searchURL, &results); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, comic := range results {
		if comic.Slug == "" || comic.Title == "" {
			continue
		}
		hit := SearchHit{
			SourceID:  comic.Slug,
			Title:     comic.Title,
			CoverURL:  comic.CoverURL,
			SourceURL: fmt.Sprintf("%s/comic/%s", comickSiteBase, comic.Slug),
		}
		for _, alt := range comic.MDTitles {
			if alt.Title != "" && alt.Title != comic.Title {
				hit.AltTitles = append(hit.AltTitles, alt.Title)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// # Helpers

func (c *Comick) getJSON(ctx context.Context, rawURL string, target any) error {
	if err := guardedURL(c.guard, rawURL); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperr.Internal(err)
	}
	request.Header.Set("User-Agent", "yomira-sync/0.1")

	response, err := c.client.Do(request)
	if err != nil {
		return classifyTransport(c.Name(), err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return classifyStatus(c.Name(), response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperr.UpstreamSchemaChanged("comick response is not valid JSON")
	}
	return nil
}

// comickRating maps Comick's rating vocabulary onto ours.
func comickRating(rating string) string {
	switch rating {
	case "safe":
		return "safe"
	case "suggestive":
		return "suggestive"
	case "erotica":
		return "erotica"
	default:
		return "safe"
	}
}
