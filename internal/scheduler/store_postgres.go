// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/database/schema"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

// # PostgreSQL Store

// postgresStore implements the [Store] interface using pgx.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL backed scheduler store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
ClaimDueSources atomically claims up to limit due sources.

Description: The subselect picks due rows busiest-tier-first with SKIP
LOCKED so concurrent claims (a second scheduler slipping past the lock, or
an operator running the claim by hand) never block or double-claim. The
update advances each row's next check by its own tier interval in the same
statement, which is what makes the subsequent enqueue safe to crash out of.
*/
func (store *postgresStore) ClaimDueSources(ctx context.Context, limit int) ([]DueSource, error) {

	query := fmt.Sprintf(`
		UPDATE %s AS src
		SET %s = NOW() + make_interval(secs => CASE src.%s
			WHEN 'HOT' THEN $2::float
			WHEN 'WARM' THEN $3::float
			ELSE $4::float
		END)
		FROM (
			SELECT %s
			FROM %s
			WHERE %s IS NULL OR %s <= NOW()
			ORDER BY CASE %s WHEN 'HOT' THEN 0 WHEN 'WARM' THEN 1 ELSE 2 END, %s NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) AS due
		WHERE src.%s = due.%s
		RETURNING src.%s, src.%s
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.SyncPriority,
	)

	rows, err := store.pool.Query(ctx, query,
		limit,
		constants.SyncIntervalHot.Seconds(),
		constants.SyncIntervalWarm.Seconds(),
		constants.SyncIntervalCold.Seconds(),
	)
	if err != nil {
		return nil, dberr.Wrap(err, "claim due sources")
	}
	defer rows.Close()

	var due []DueSource
	for rows.Next() {
		var source DueSource
		if err := rows.Scan(&source.ID, &source.SyncPriority); err != nil {
			return nil, dberr.Wrap(err, "scan due source")
		}
		due = append(due, source)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "iterate due sources")
	}

	return due, nil
}

/*
PromoteHot raises sources of heavily followed series to the HOT tier.

Description: Promotion also pulls the next check forward so a series that
just crossed the threshold does not wait out its old WARM interval. The
follower count lives on the series row and is maintained by the library
store's entry transactions.
*/
func (store *postgresStore) PromoteHot(ctx context.Context, followerThreshold int) (int, error) {

	query := fmt.Sprintf(`
		UPDATE %s AS src
		SET %s = 'HOT',
			%s = LEAST(src.%s, NOW() + make_interval(secs => $2::float))
		FROM %s AS s
		WHERE src.%s = s.%s
		  AND s.%s > $1
		  AND src.%s <> 'HOT'
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CoreSeries.Table,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CoreSeries.ID,
		schema.CoreSeries.TotalFollows,
		schema.CrawlerSeriesSource.SyncPriority,
	)

	tag, err := store.pool.Exec(ctx, query, followerThreshold, constants.SyncIntervalHot.Seconds())
	if err != nil {
		return 0, dberr.Wrap(err, "promote hot sources")
	}

	return int(tag.RowsAffected()), nil
}

/*
DemoteStale lowers tiers for sources whose series stopped producing.

Description: Staleness reads off the source row's own last successful check.
A HOT source only demotes when its series also fell back under the follower
threshold, so promotion and demotion cannot flap on a quiet but popular
series. A source that never succeeded counts as stale.
*/
func (store *postgresStore) DemoteStale(ctx context.Context) (int, int, error) {

	hotQuery := fmt.Sprintf(`
		UPDATE %s AS src
		SET %s = 'WARM'
		FROM %s AS s
		WHERE src.%s = s.%s
		  AND src.%s = 'HOT'
		  AND s.%s <= $1
		  AND (src.%s IS NULL OR src.%s < NOW() - make_interval(secs => $2::float))
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CoreSeries.Table,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CoreSeries.ID,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CoreSeries.TotalFollows,
		schema.CrawlerSeriesSource.LastSuccessAt,
		schema.CrawlerSeriesSource.LastSuccessAt,
	)

	hotTag, err := store.pool.Exec(ctx, hotQuery,
		constants.HotReaderThreshold,
		constants.DemoteHotAfter.Seconds(),
	)
	if err != nil {
		return 0, 0, dberr.Wrap(err, "demote hot sources")
	}

	warmQuery := fmt.Sprintf(`
		UPDATE %s AS src
		SET %s = 'COLD'
		WHERE src.%s = 'WARM'
		  AND (src.%s IS NULL OR src.%s < NOW() - make_interval(secs => $1::float))
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.LastSuccessAt,
		schema.CrawlerSeriesSource.LastSuccessAt,
	)

	warmTag, err := store.pool.Exec(ctx, warmQuery, constants.DemoteWarmAfter.Seconds())
	if err != nil {
		return int(hotTag.RowsAffected()), 0, dberr.Wrap(err, "demote warm sources")
	}

	return int(hotTag.RowsAffected()), int(warmTag.RowsAffected()), nil
}

// SeriesMissingCovers lists series with no best cover where at least one
// source reports one, oldest first so backfill makes steady progress.
func (store *postgresStore) SeriesMissingCovers(ctx context.Context, limit int) ([]string, error) {

	query := fmt.Sprintf(`
		SELECT s.%s
		FROM %s AS s
		WHERE s.%s IS NULL
		  AND EXISTS (
			SELECT 1 FROM %s AS src
			WHERE src.%s = s.%s AND src.%s IS NOT NULL
		  )
		ORDER BY s.%s
		LIMIT $1
	`,
		schema.CoreSeries.ID,
		schema.CoreSeries.Table,
		schema.CoreSeries.BestCoverURL,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CoreSeries.ID,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CoreSeries.CreatedAt,
	)

	rows, err := store.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "list series missing covers")
	}
	defer rows.Close()

	var seriesIDs []string
	for rows.Next() {
		var seriesID string
		if err := rows.Scan(&seriesID); err != nil {
			return nil, dberr.Wrap(err, "scan series id")
		}
		seriesIDs = append(seriesIDs, seriesID)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "iterate series missing covers")
	}

	return seriesIDs, nil
}
