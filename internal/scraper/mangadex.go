// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

const (
	mangadexAPIBase  = "https://api.mangadex.org"
	mangadexSiteBase = "https://mangadex.org"

	// mangadexFeedLimit is the page size of the chapter feed endpoint.
	mangadexFeedLimit = 500
)

// MangaDex is the adapter for the MangaDex JSON API.
type MangaDex struct {
	client *http.Client
	guard  URLGuard
}

// NewMangaDex constructs the adapter with the shared URL guard.
func NewMangaDex(guard URLGuard) *MangaDex {
	return &MangaDex{client: newHTTPClient(), guard: guard}
}

// Name implements [Scraper].
func (m *MangaDex) Name() string { return "mangadex" }

// # Wire Shapes

// The manga and chapter endpoints both call their display name "title", but
// the manga one is a locale map and the chapter one a plain string, so the
// two entities get separate structs.

type mangadexSeriesEntity struct {
	ID         string `json:"id"`
	Attributes struct {
		Title         map[string]string   `json:"title"`
		AltTitles     []map[string]string `json:"altTitles"`
		ContentRating string              `json:"contentRating"`
	} `json:"attributes"`
	Relationships []mangadexRelationship `json:"relationships"`
}

type mangadexChapterEntity struct {
	ID         string `json:"id"`
	Attributes struct {
		Chapter       string     `json:"chapter"`
		Title         string     `json:"title"`
		Volume        string     `json:"volume"`
		PublishAt     *time.Time `json:"publishAt"`
		TranslatedLng string     `json:"translatedLanguage"`
	} `json:"attributes"`
	Relationships []mangadexRelationship `json:"relationships"`
}

type mangadexRelationship struct {
	Type       string `json:"type"`
	Attributes struct {
		FileName string `json:"fileName"`
		Name     string `json:"name"`
	} `json:"attributes"`
}

type mangadexEnvelope struct {
	Result string           `json:"result"`
	Data   json.RawMessage  `json:"data"`
	Errors []map[string]any `json:"errors"`
}

// # Operations

/*
ScrapeSeries fetches series metadata plus the full English chapter feed.

Description: MangaDex series IDs are UUIDs; anything else is rejected before
any outbound call. Two requests are made: /manga/{id} for metadata and
/manga/{id}/feed for chapters.
*/
func (m *MangaDex) ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error) {
	if _, err := uuid.Parse(sourceID); err != nil {
		return nil, apperr.InvalidInput("mangadex source id must be a UUID: " + sourceID)
	}

	// Metadata request
	metaURL := fmt.Sprintf("%s/manga/%s?includes[]=cover_art", mangadexAPIBase, sourceID)

	var metaEnvelope mangadexEnvelope
	if err := m.getJSON(ctx, metaURL, &metaEnvelope); err != nil {
		return nil, err
	}

	var entity mangadexSeriesEntity
	if err := json.Unmarshal(metaEnvelope.Data, &entity); err != nil {
		return nil, apperr.UpstreamSchemaChanged("mangadex manga payload shape changed")
	}

	series := mangadexSeriesFrom(sourceID, entity)
	if series.Title == "" {
		return nil, apperr.UpstreamSchemaChanged("mangadex manga payload missing title")
	}

	// Chapter feed request
	feedURL := fmt.Sprintf(
		"%s/manga/%s/feed?limit=%d&translatedLanguage[]=en&order[chapter]=asc",
		mangadexAPIBase, sourceID, mangadexFeedLimit,
	)

	var feedEnvelope struct {
		Data []mangadexChapterEntity `json:"data"`
	}
	if err := m.getJSON(ctx, feedURL, &feedEnvelope); err != nil {
		return nil, err
	}

	for _, chapterEntity := range feedEnvelope.Data {
		if chapter, ok := mangadexChapterFrom(chapterEntity); ok {
			series.Chapters = append(series.Chapters, chapter)
		}
	}

	return series, nil
}

// mangadexSeriesFrom maps a decoded manga entity onto the scrape contract.
func mangadexSeriesFrom(sourceID string, entity mangadexSeriesEntity) *ScrapedSeries {
	series := &ScrapedSeries{
		SourceID:      sourceID,
		Title:         pickTitle(entity.Attributes.Title),
		ContentRating: entity.Attributes.ContentRating,
		CoverURL:      mangadexCoverURL(sourceID, entity.Relationships),
	}
	for _, alt := range entity.Attributes.AltTitles {
		if title := pickTitle(alt); title != "" {
			series.AltTitles = append(series.AltTitles, title)
		}
	}
	return series
}

// mangadexChapterFrom maps a decoded feed entity onto the scrape contract.
// Oneshots and extras carry no parseable number and report false.
func mangadexChapterFrom(entity mangadexChapterEntity) (ScrapedChapter, bool) {
	number, err := strconv.ParseFloat(entity.Attributes.Chapter, 64)
	if err != nil {
		return ScrapedChapter{}, false
	}

	chapter := ScrapedChapter{
		Number:      number,
		URL:         fmt.Sprintf("%s/chapter/%s", mangadexSiteBase, entity.ID),
		Language:    orDefault(entity.Attributes.TranslatedLng, "en"),
		PublishedAt: entity.Attributes.PublishAt,
	}
	if title := entity.Attributes.Title; title != "" {
		chapter.Title = &title
	}
	if volume, err := strconv.ParseFloat(entity.Attributes.Volume, 64); err == nil {
		chapter.Volume = &volume
	}
	for _, rel := range entity.Relationships {
		if rel.Type == "scanlation_group" && rel.Attributes.Name != "" {
			group := rel.Attributes.Name
			chapter.ScanlationGroup = &group
		}
	}
	return chapter, true
}

// SearchSeries implements [Scraper] against the /manga title search.
func (m *MangaDex) SearchSeries(ctx context.Context, query string) ([]SearchHit, error) {
	searchURL := fmt.Sprintf("%s/manga?title=%s&limit=10&includes[]=cover_art",
		mangadexAPIBase, url.QueryEscape(query))

	var envelope struct {
		Data []mangadexSeriesEntity `json:"data"`
	}
	if err := m.getJSON(ctx, searchURL, &envelope); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(envelope.Data))
	for _, entity := range envelope.Data {
		hit := SearchHit{
			SourceID:  entity.ID,
			Title:     pickTitle(entity.Attributes.Title),
			CoverURL:  mangadexCoverURL(entity.ID, entity.Relationships),
			SourceURL: fmt.Sprintf("%s/title/%s", mangadexSiteBase, entity.ID),
		}
		for _, alt := range entity.Attributes.AltTitles {
			if title := pickTitle(alt); title != "" {
				hit.AltTitles = append(hit.AltTitles, title)
			}
		}
		if hit.Title != "" {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// # Helpers

// getJSON performs one guarded GET and decodes the response body.
func (m *MangaDex) getJSON(ctx context.Context, rawURL string, target any) error {
	if err := guardedURL(m.guard, rawURL); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperr.Internal(err)
	}
	request.Header.Set("User-Agent", "yomira-sync/0.1")

	response, err := m.client.Do(request)
	if err != nil {
		return classifyTransport(m.Name(), err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return classifyStatus(m.Name(), response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperr.UpstreamSchemaChanged("mangadex response is not valid JSON")
	}
	return nil
}

// mangadexCoverURL derives the CDN cover URL from the cover_art relationship.
func mangadexCoverURL(seriesID string, relationships []mangadexRelationship) string {
	for _, rel := range relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			return fmt.Sprintf("https://uploads.mangadex.org/covers/%s/%s", seriesID, rel.Attributes.FileName)
		}
	}
	return ""
}

// pickTitle prefers the English title, falling back to any available locale.
func pickTitle(titles map[string]string) string {
	if title, found := titles["en"]; found && title != "" {
		return title
	}
	for _, title := range titles {
		if title != "" {
			return title
		}
	}
	return ""
}

// orDefault returns value unless it is empty.
func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
