// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
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

// NewPostgresStore constructs a PostgreSQL backed ingestion store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
FindSource returns the series source row by ID.

Returns:
  - *SeriesSource: The hydrated row.
  - error: apperr.NotFound on absent rows, classified database errors otherwise.
*/
func (store *postgresStore) FindSource(ctx context.Context, id string) (*SeriesSource, error) {

	// Row retrieval query
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1
	`,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CrawlerSeriesSource.SourceName,
		schema.CrawlerSeriesSource.SourceID,
		schema.CrawlerSeriesSource.SourceURL,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.TrustScore,
		schema.CrawlerSeriesSource.SyncPriority,
		schema.CrawlerSeriesSource.LastSuccessAt,
		schema.CrawlerSeriesSource.LastCheckedAt,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.FailureCount,
		schema.CrawlerSeriesSource.SourceChapterCount,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.ID,
	)

	var source SeriesSource
	err := store.pool.QueryRow(ctx, query, id).Scan(
		&source.ID,
		&source.SeriesID,
		&source.SourceName,
		&source.SourceID,
		&source.SourceURL,
		&source.CoverURL,
		&source.TrustScore,
		&source.SyncPriority,
		&source.LastSuccessAt,
		&source.LastCheckedAt,
		&source.NextCheckAt,
		&source.FailureCount,
		&source.SourceChapterCount,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "find series source")
	}

	return &source, nil
}

/*
IngestBatch upserts a batch of chapters inside one transaction.

Description: For every chapter, the logical row is upserted on the
(series, chapter number) natural key with nil-safe field merging, then the
provider link is upserted on (series source, logical chapter). The
RETURNING (xmax = 0) trick distinguishes a genuine insert from a re-seen
chapter without a second round-trip.
*/
func (store *postgresStore) IngestBatch(ctx context.Context, source *SeriesSource, chapters []ChapterInput) ([]NewChapter, error) {

	// Pre-condition verification
	if len(chapters) == 0 {
		return nil, nil
	}

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return nil, dberr.Wrap(err, "begin ingest transaction")
	}
	defer tx.Rollback(ctx)

	// Logical chapter upsert: optional fields merge via COALESCE so a source
	// reporting less detail never erases what another source already filled.
	logicalQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = COALESCE(EXCLUDED.%s, %s.%s)
		RETURNING %s, (xmax = 0) AS inserted
	`,
		schema.CoreLogicalChapter.Table,
		schema.CoreLogicalChapter.ID,
		schema.CoreLogicalChapter.SeriesID,
		schema.CoreLogicalChapter.ChapterNumber,
		schema.CoreLogicalChapter.ChapterTitle,
		schema.CoreLogicalChapter.VolumeNumber,
		schema.CoreLogicalChapter.PublishedAt,
		schema.CoreLogicalChapter.SeriesID, schema.CoreLogicalChapter.ChapterNumber,
		schema.CoreLogicalChapter.ChapterTitle, schema.CoreLogicalChapter.ChapterTitle, schema.CoreLogicalChapter.Table, schema.CoreLogicalChapter.ChapterTitle,
		schema.CoreLogicalChapter.VolumeNumber, schema.CoreLogicalChapter.VolumeNumber, schema.CoreLogicalChapter.Table, schema.CoreLogicalChapter.VolumeNumber,
		schema.CoreLogicalChapter.PublishedAt, schema.CoreLogicalChapter.PublishedAt, schema.CoreLogicalChapter.Table, schema.CoreLogicalChapter.PublishedAt,
		schema.CoreLogicalChapter.ID,
	)

	// Provider link upsert: availability flips back on if a chapter
	// reappears after being delisted.
	linkQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = TRUE
	`,
		schema.CrawlerChapterSource.Table,
		schema.CrawlerChapterSource.ID,
		schema.CrawlerChapterSource.SeriesSourceID,
		schema.CrawlerChapterSource.ChapterID,
		schema.CrawlerChapterSource.ChapterURL,
		schema.CrawlerChapterSource.ChapterTitle,
		schema.CrawlerChapterSource.ScanlationGroup,
		schema.CrawlerChapterSource.Language,
		schema.CrawlerChapterSource.SourcePublishedAt,
		schema.CrawlerChapterSource.IsAvailable,
		schema.CrawlerChapterSource.SeriesSourceID, schema.CrawlerChapterSource.ChapterID,
		schema.CrawlerChapterSource.ChapterURL, schema.CrawlerChapterSource.ChapterURL,
		schema.CrawlerChapterSource.ChapterTitle, schema.CrawlerChapterSource.ChapterTitle, schema.CrawlerChapterSource.Table, schema.CrawlerChapterSource.ChapterTitle,
		schema.CrawlerChapterSource.ScanlationGroup, schema.CrawlerChapterSource.ScanlationGroup, schema.CrawlerChapterSource.Table, schema.CrawlerChapterSource.ScanlationGroup,
		schema.CrawlerChapterSource.SourcePublishedAt, schema.CrawlerChapterSource.SourcePublishedAt, schema.CrawlerChapterSource.Table, schema.CrawlerChapterSource.SourcePublishedAt,
		schema.CrawlerChapterSource.IsAvailable,
	)

	var created []NewChapter
	for _, chapter := range chapters {
		var logicalID string
		var inserted bool

		err := tx.QueryRow(ctx, logicalQuery,
			pkguuid.New(),
			source.SeriesID,
			chapter.Number,
			chapter.Title,
			chapter.Volume,
			chapter.PublishedAt,
		).Scan(&logicalID, &inserted)
		if err != nil {
			return nil, dberr.Wrap(err, "upsert logical chapter")
		}

		_, err = tx.Exec(ctx, linkQuery,
			pkguuid.New(),
			source.ID,
			logicalID,
			chapter.URL,
			chapter.Title,
			chapter.ScanlationGroup,
			chapter.Language,
			chapter.PublishedAt,
		)
		if err != nil {
			return nil, dberr.Wrap(err, "upsert chapter source")
		}

		if inserted {
			created = append(created, NewChapter{LogicalChapterID: logicalID, Number: chapter.Number})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Wrap(err, "commit ingest transaction")
	}

	return created, nil
}

/*
FinalizeSync records a successful sync on the source row.
*/
func (store *postgresStore) FinalizeSync(ctx context.Context, sourceID string, chapterCount int, nextCheckAt time.Time) error {

	// The chapter count is assigned, never incremented, so a source that
	// delists chapters converges to the truth on the next sync.
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = NOW(), %s = NOW(), %s = 0, %s = $2, %s = $3, %s = NOW()
		WHERE %s = $1
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.LastSuccessAt,
		schema.CrawlerSeriesSource.LastCheckedAt,
		schema.CrawlerSeriesSource.FailureCount,
		schema.CrawlerSeriesSource.SourceChapterCount,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.UpdatedAt,
		schema.CrawlerSeriesSource.ID,
	)

	result, err := store.pool.Exec(ctx, query, sourceID, chapterCount, nextCheckAt)
	if err != nil {
		return dberr.Wrap(err, "finalize sync")
	}
	if result.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, "finalize sync")
	}

	return nil
}

/*
RecordFailure bumps the failure streak and defers the next check.
*/
func (store *postgresStore) RecordFailure(ctx context.Context, sourceID string, nextCheckAt time.Time) (int, error) {

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = %s + 1, %s = NOW(), %s = $2, %s = NOW()
		WHERE %s = $1
		RETURNING %s
	`,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.FailureCount, schema.CrawlerSeriesSource.FailureCount,
		schema.CrawlerSeriesSource.LastCheckedAt,
		schema.CrawlerSeriesSource.NextCheckAt,
		schema.CrawlerSeriesSource.UpdatedAt,
		schema.CrawlerSeriesSource.ID,
		schema.CrawlerSeriesSource.FailureCount,
	)

	var failures int
	if err := store.pool.QueryRow(ctx, query, sourceID, nextCheckAt).Scan(&failures); err != nil {
		return 0, dberr.Wrap(err, "record source failure")
	}

	return failures, nil
}

/*
AdvanceLatestChapter raises the series latest-chapter watermark.

Description: The WHERE guard makes the watermark monotonic under concurrent
syncs. A database trigger enforces the same invariant as a backstop; this
guarded update keeps the common path trigger-independent and cheap.
*/
func (store *postgresStore) AdvanceLatestChapter(ctx context.Context, seriesID string, number float64) error {

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = NOW()
		WHERE %s = $1 AND (%s IS NULL OR %s < $2)
	`,
		schema.CoreSeries.Table,
		schema.CoreSeries.LatestChapter,
		schema.CoreSeries.UpdatedAt,
		schema.CoreSeries.ID,
		schema.CoreSeries.LatestChapter,
		schema.CoreSeries.LatestChapter,
	)

	// Zero rows affected is fine: a concurrent sync already advanced it.
	if _, err := store.pool.Exec(ctx, query, seriesID, number); err != nil {
		return dberr.Wrap(err, "advance latest chapter")
	}

	return nil
}

/*
RefreshBestCover recomputes the series cover from its most trusted source.
*/
func (store *postgresStore) RefreshBestCover(ctx context.Context, seriesID string) error {

	query := fmt.Sprintf(`
		UPDATE %s series
		SET %s = candidate.%s, %s = NOW()
		FROM (
			SELECT %s
			FROM %s
			WHERE %s = $1 AND %s IS NOT NULL AND %s <> ''
			ORDER BY %s DESC, %s DESC NULLS LAST
			LIMIT 1
		) candidate
		WHERE series.%s = $1 AND series.%s IS DISTINCT FROM candidate.%s
	`,
		schema.CoreSeries.Table,
		schema.CoreSeries.BestCoverURL, schema.CrawlerSeriesSource.CoverURL,
		schema.CoreSeries.UpdatedAt,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.Table,
		schema.CrawlerSeriesSource.SeriesID,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.CoverURL,
		schema.CrawlerSeriesSource.TrustScore,
		schema.CrawlerSeriesSource.LastSuccessAt,
		schema.CoreSeries.ID,
		schema.CoreSeries.BestCoverURL, schema.CrawlerSeriesSource.CoverURL,
	)

	if _, err := store.pool.Exec(ctx, query, seriesID); err != nil {
		return dberr.Wrap(err, "refresh best cover")
	}

	return nil
}

/*
WithSeriesLock runs fn while holding the per-series advisory lock.

Description: The lock key is hashtext(seriesID), taken with
pg_try_advisory_lock so a contended refresh returns immediately instead of
queueing. Lock and unlock must run on the same session, so a dedicated
connection is pinned for the duration of fn.

Returns:
  - bool: false when the lock is held elsewhere; fn did not run.
*/
func (store *postgresStore) WithSeriesLock(ctx context.Context, seriesID string, fn func(ctx context.Context) error) (bool, error) {

	connection, err := store.pool.Acquire(ctx)
	if err != nil {
		return false, dberr.Wrap(err, "acquire connection for series lock")
	}
	defer connection.Release()

	var acquired bool
	err = connection.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, seriesID).Scan(&acquired)
	if err != nil {
		return false, dberr.Wrap(err, "take series advisory lock")
	}
	if !acquired {
		return false, nil
	}

	// The unlock runs on a background-derived context so a canceled fn
	// cannot leave the session lock dangling until the connection dies.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_, _ = connection.Exec(releaseCtx, `SELECT pg_advisory_unlock(hashtext($1))`, seriesID)
	}()

	return true, fn(ctx)
}
