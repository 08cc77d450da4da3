// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"context"
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

// NewPostgresStore constructs a PostgreSQL backed notification store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
CreateBatch inserts notifications in a pipelined batch.

Description: Uses Postgres batching to reduce round-trips for large
delivery chunks. Each insert is idempotent on the natural key, so a
replayed delivery job re-sends nothing.

Returns:
  - int: How many rows were actually inserted (conflicts excluded).
*/
func (store *postgresStore) CreateBatch(ctx context.Context, notifications []Notification) (int, error) {

	// Pre-condition verification
	if len(notifications) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (%s, %s, %s) DO NOTHING
	`,
		schema.NotifyNotification.Table,
		schema.NotifyNotification.ID,
		schema.NotifyNotification.UserID,
		schema.NotifyNotification.NotifyType,
		schema.NotifyNotification.SeriesID,
		schema.NotifyNotification.LogicalChapterID,
		schema.NotifyNotification.Metadata,
		schema.NotifyNotification.UserID,
		schema.NotifyNotification.LogicalChapterID,
		schema.NotifyNotification.NotifyType,
	)

	// Batch queue construction
	batch := &pgx.Batch{}
	for _, notification := range notifications {
		batch.Queue(query,
			pkguuid.New(),
			notification.UserID,
			notification.NotifyType,
			notification.SeriesID,
			notification.LogicalChapterID,
			notification.Metadata,
		)
	}

	// Send batch and close pipeline
	results := store.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for i := 0; i < len(notifications); i++ {
		tag, err := results.Exec()
		if err != nil {
			return inserted, dberr.Wrap(err, fmt.Sprintf("batch insert notification %d", i))
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}
