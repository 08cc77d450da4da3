// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira-worker/internal/platform/database/schema"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
	pkguuid "github.com/taibuivan/yomira-worker/pkg/uuid"
)

// # PostgreSQL Store

// postgresStore implements the [Store] interface using pgx.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL backed catalog store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
FindListing returns the listing for a (source, provider ID) pair.
*/
func (store *postgresStore) FindListing(ctx context.Context, sourceName, sourceID string) (*Listing, error) {

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SourceName,
		schema.CrawlerSeriesSource.SourceID,
	)

	var listing Listing
	err := store.pool.QueryRow(ctx, query, sourceName, sourceID).Scan(&listing.ID, &listing.SeriesID)
	if err != nil {
		return nil, dberr.Wrap(err, "find provider listing")
	}

	return &listing, nil
}

/*
SearchSeries runs a full-text search over titles and alt titles.

Description: Uses websearch_to_tsquery against the GIN-indexed title vector,
widened with a trigram-free ILIKE pass over alt titles so non-Latin titles
still surface. Ranked by ts_rank with follower count as the tiebreaker so
the popular candidate wins when relevance is flat.
*/
func (store *postgresStore) SearchSeries(ctx context.Context, query string, limit int) ([]*Series, error) {

	searchQuery := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE to_tsvector('simple', %s) @@ websearch_to_tsquery('simple', $1)
		   OR %s ILIKE '%%' || $1 || '%%'
		   OR EXISTS (
			SELECT 1 FROM unnest(%s) alt WHERE alt ILIKE '%%' || $1 || '%%'
		   )
		ORDER BY ts_rank(to_tsvector('simple', %s), websearch_to_tsquery('simple', $1)) DESC,
			%s DESC
		LIMIT $2
	`,
		schema.CoreSeries.ID,
		schema.CoreSeries.Title,
		schema.CoreSeries.SeriesType,
		schema.CoreSeries.ContentRating,
		schema.CoreSeries.LatestChapter,
		schema.CoreSeries.TotalFollows,
		schema.CoreSeries.BestCoverURL,
		schema.CoreSeries.AltTitles,
		schema.CoreSeries.CreatedAt,
		schema.CoreSeries.UpdatedAt,
		schema.CoreSeries.Table,
		schema.CoreSeries.Title,
		schema.CoreSeries.Title,
		schema.CoreSeries.AltTitles,
		schema.CoreSeries.Title,
		schema.CoreSeries.TotalFollows,
	)

	rows, err := store.pool.Query(ctx, searchQuery, query, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "search series")
	}
	defer rows.Close()

	var results []*Series
	for rows.Next() {
		var series Series
		err := rows.Scan(
			&series.ID,
			&series.Title,
			&series.SeriesType,
			&series.ContentRating,
			&series.LatestChapter,
			&series.TotalFollows,
			&series.BestCoverURL,
			&series.AltTitles,
			&series.CreatedAt,
			&series.UpdatedAt,
		)
		if err != nil {
			return nil, dberr.Wrap(err, "scan series")
		}
		results = append(results, &series)
	}

	return results, rows.Err()
}

/*
CreateSeries persists a new canonical series.
*/
func (store *postgresStore) CreateSeries(ctx context.Context, series *Series) error {

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		schema.CoreSeries.Table,
		schema.CoreSeries.ID,
		schema.CoreSeries.Title,
		schema.CoreSeries.SeriesType,
		schema.CoreSeries.ContentRating,
		schema.CoreSeries.BestCoverURL,
		schema.CoreSeries.AltTitles,
	)

	_, err := store.pool.Exec(ctx, query,
		series.ID,
		series.Title,
		series.SeriesType,
		series.ContentRating,
		series.BestCoverURL,
		series.AltTitles,
	)
	if err != nil {
		return dberr.Wrap(err, "create series")
	}

	return nil
}

/*
UpsertListing registers a provider listing.

Description: Conflicts on the (source, provider ID) key update the cover and
URL in place so replays refresh metadata instead of failing. The xmax trick
distinguishes a fresh registration from a refresh.
*/
func (store *postgresStore) UpsertListing(ctx context.Context, listing NewListing) (*Listing, bool, error) {

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, '%s', NOW())
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), %s.%s),
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), %s.%s),
			%s = NOW()
		RETURNING %s, %s, (xmax = 0) AS inserted
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CrawlerSeriesSource.SourceName,
		schema.CrawlerSeriesSource.SourceID,
		schema.CrawlerSeriesSource.SourceURL,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.TrustScore,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.NextCheckAt,
		"WARM",
		schema.CrawlerSeriesSource.SourceName, schema.CrawlerSeriesSource.SourceID,
		schema.CrawlerSeriesSource.SourceURL, schema.CrawlerSeriesSource.SourceURL, schema.CrawlerSeriesSource.Table, schema.CrawlerSeriesSource.SourceURL,
		schema.CrawlerSeriesSource.CoverURL, schema.CrawlerSeriesSource.CoverURL, schema.CrawlerSeriesSource.Table, schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.UpdatedAt,
		schema.CrawlerSeriesSource.ID, schema.CrawlerSeriesSource.SeriesID,
	)

	var result Listing
	var inserted bool
	err := store.pool.QueryRow(ctx, query,
		pkguuid.New(),
		listing.SeriesID,
		listing.SourceName,
		listing.SourceID,
		listing.SourceURL,
		listing.CoverURL,
		TrustScore(listing.SourceName),
	).Scan(&result.ID, &result.SeriesID, &inserted)
	if err != nil {
		return nil, false, dberr.Wrap(err, "upsert provider listing")
	}

	return &result, inserted, nil
}
