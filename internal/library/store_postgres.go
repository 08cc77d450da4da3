// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import (
	"context"
	"errors"
	"fmt"

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

// NewPostgresStore constructs a PostgreSQL backed library store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
Subscribers returns the users eligible for a new-chapter notification.

Description: The whole eligibility predicate runs in one query so fan-out
never loads the full follower list into memory just to filter it. The
rating gate compares rank positions via core.fn_rating_rank, so an account
capped at "safe" never hears about an erotica series it somehow follows.

Returns:
  - []Subscriber: Eligible users with their premium flag, ordered by user ID
    so chunking is deterministic.
*/
func (store *postgresStore) Subscribers(ctx context.Context, seriesID string, chapterNumber float64) ([]Subscriber, error) {

	query := fmt.Sprintf(`
		SELECT e.%s, a.%s
		FROM %s e
		JOIN %s a ON a.%s = e.%s
		JOIN %s s ON s.%s = e.%s
		WHERE e.%s = $1
		  AND e.%s <> '%s'
		  AND e.%s
		  AND core.fn_rating_rank(a.%s) >= core.fn_rating_rank(s.%s)
		  AND NOT EXISTS (
			SELECT 1 FROM %s r
			WHERE r.%s = e.%s AND r.%s = e.%s AND r.%s = $2
		  )
		ORDER BY e.%s
	`,
		schema.LibraryEntry.UserID, schema.UsersAccount.IsPremium,
		schema.LibraryEntry.Table,
		schema.UsersAccount.Table, schema.UsersAccount.ID, schema.LibraryEntry.UserID,
		schema.CoreSeries.Table, schema.CoreSeries.ID, schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.Status, StatusDropped,
		schema.LibraryEntry.NotifyNewChapters,
		schema.UsersAccount.MaxContentRating, schema.CoreSeries.ContentRating,
		schema.LibraryChapterRead.Table,
		schema.LibraryChapterRead.UserID, schema.LibraryEntry.UserID,
		schema.LibraryChapterRead.SeriesID, schema.LibraryEntry.SeriesID,
		schema.LibraryChapterRead.ChapterNumber,
		schema.LibraryEntry.UserID,
	)

	rows, err := store.pool.Query(ctx, query, seriesID, chapterNumber)
	if err != nil {
		return nil, dberr.Wrap(err, "list subscribers")
	}
	defer rows.Close()

	var subscribers []Subscriber
	for rows.Next() {
		var subscriber Subscriber
		if err := rows.Scan(&subscriber.UserID, &subscriber.IsPremium); err != nil {
			return nil, dberr.Wrap(err, "scan subscriber")
		}
		subscribers = append(subscribers, subscriber)
	}

	return subscribers, rows.Err()
}

/*
FilterUnread narrows a user batch to those who still have not read the
chapter.
*/
func (store *postgresStore) FilterUnread(ctx context.Context, userIDs []string, seriesID string, chapterNumber float64) ([]string, error) {

	// Pre-condition verification
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT candidate
		FROM unnest($1::uuid[]) AS candidate
		WHERE NOT EXISTS (
			SELECT 1 FROM %s r
			WHERE r.%s = candidate AND r.%s = $2 AND r.%s = $3
		)
	`,
		schema.LibraryChapterRead.Table,
		schema.LibraryChapterRead.UserID,
		schema.LibraryChapterRead.SeriesID,
		schema.LibraryChapterRead.ChapterNumber,
	)

	rows, err := store.pool.Query(ctx, query, userIDs, seriesID, chapterNumber)
	if err != nil {
		return nil, dberr.Wrap(err, "filter unread users")
	}
	defer rows.Close()

	var unread []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, dberr.Wrap(err, "scan unread user")
		}
		unread = append(unread, userID)
	}

	return unread, rows.Err()
}

/*
AddEntry creates a follow entry and bumps the series follower count.

Description: Both writes share a transaction so the counter can never drift
from the entry table. The RETURNING clause on the DO NOTHING upsert only
yields a row for a genuine insert, which gates the increment.
*/
func (store *postgresStore) AddEntry(ctx context.Context, userID, seriesID string) (bool, error) {

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return false, dberr.Wrap(err, "begin follow transaction")
	}
	defer tx.Rollback(ctx)

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, '%s', TRUE)
		ON CONFLICT (%s, %s) DO NOTHING
		RETURNING %s
	`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.ID,
		schema.LibraryEntry.UserID,
		schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.Status,
		schema.LibraryEntry.NotifyNewChapters,
		StatusReading,
		schema.LibraryEntry.UserID, schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.ID,
	)

	var entryID string
	err = tx.QueryRow(ctx, insertQuery, pkguuid.New(), userID, seriesID).Scan(&entryID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already following; nothing to count.
		return false, tx.Commit(ctx)
	}
	if err != nil {
		return false, dberr.Wrap(err, "insert library entry")
	}

	countQuery := fmt.Sprintf(`UPDATE %s SET %s = %s + 1, %s = NOW() WHERE %s = $1`,
		schema.CoreSeries.Table,
		schema.CoreSeries.TotalFollows, schema.CoreSeries.TotalFollows,
		schema.CoreSeries.UpdatedAt,
		schema.CoreSeries.ID,
	)
	if _, err := tx.Exec(ctx, countQuery, seriesID); err != nil {
		return false, dberr.Wrap(err, "increment follower count")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, dberr.Wrap(err, "commit follow transaction")
	}
	return true, nil
}

/*
RemoveEntry deletes a follow entry and decrements the follower count.
*/
func (store *postgresStore) RemoveEntry(ctx context.Context, userID, seriesID string) (bool, error) {

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return false, dberr.Wrap(err, "begin unfollow transaction")
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.UserID,
		schema.LibraryEntry.SeriesID,
	)

	result, err := tx.Exec(ctx, deleteQuery, userID, seriesID)
	if err != nil {
		return false, dberr.Wrap(err, "delete library entry")
	}
	if result.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	// GREATEST guards the counter against going negative if a backfill ever
	// desynced it.
	countQuery := fmt.Sprintf(`UPDATE %s SET %s = GREATEST(%s - 1, 0), %s = NOW() WHERE %s = $1`,
		schema.CoreSeries.Table,
		schema.CoreSeries.TotalFollows, schema.CoreSeries.TotalFollows,
		schema.CoreSeries.UpdatedAt,
		schema.CoreSeries.ID,
	)
	if _, err := tx.Exec(ctx, countQuery, seriesID); err != nil {
		return false, dberr.Wrap(err, "decrement follower count")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, dberr.Wrap(err, "commit unfollow transaction")
	}
	return true, nil
}

/*
MarkRead records a chapter as read and rolls the last-read watermark forward.
*/
func (store *postgresStore) MarkRead(ctx context.Context, userID, seriesID string, chapterNumber float64) error {

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return dberr.Wrap(err, "begin mark-read transaction")
	}
	defer tx.Rollback(ctx)

	// Idempotent insertion strategy
	readQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`,
		schema.LibraryChapterRead.Table,
		schema.LibraryChapterRead.UserID,
		schema.LibraryChapterRead.SeriesID,
		schema.LibraryChapterRead.ChapterNumber,
	)
	if _, err := tx.Exec(ctx, readQuery, userID, seriesID, chapterNumber); err != nil {
		return dberr.Wrap(err, "insert chapter read")
	}

	// The watermark only moves forward; reading a backlist chapter late
	// never rewinds it.
	entryQuery := fmt.Sprintf(`
		UPDATE %s
		SET %s = $3, %s = NOW()
		WHERE %s = $1 AND %s = $2 AND (%s IS NULL OR %s < $3)
	`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.LastReadChapter,
		schema.LibraryEntry.UpdatedAt,
		schema.LibraryEntry.UserID,
		schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.LastReadChapter,
		schema.LibraryEntry.LastReadChapter,
	)
	if _, err := tx.Exec(ctx, entryQuery, userID, seriesID, chapterNumber); err != nil {
		return dberr.Wrap(err, "advance last read chapter")
	}

	if err := tx.Commit(ctx); err != nil {
		return dberr.Wrap(err, "commit mark-read transaction")
	}
	return nil
}
