// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

// Heat is one query's demand level inside the sliding window.
type Heat struct {
	// Count is how many times the query was seen.
	Count int
	// Users is how many distinct users asked it.
	Users int
}

// Hot reports whether the demand justifies spending an external request.
// Either signal alone is enough: one user asking twice or two users asking
// once both count as demand.
func (h Heat) Hot() bool {
	return h.Count >= constants.SearchHeatMinCount || h.Users >= constants.SearchHeatMinUsers
}

// heatTracker accounts query demand in the shared KV store.
type heatTracker struct {
	store *kv.KV
}

/*
Record notes one sighting of a query and returns the updated heat.

Description: Two keys per query hash: a counter and a distinct-user set,
both expiring on the sliding window. The window restarts on expiry rather
than sliding per-sighting, which is deliberately cheap; a query popular
enough to matter re-heats within one window.
*/
func (tracker *heatTracker) Record(ctx context.Context, queryHash, userID string) (Heat, error) {
	client := tracker.store.Client()
	countKey := tracker.store.Key(constants.KeySearchHeat, queryHash, "count")
	usersKey := tracker.store.Key(constants.KeySearchHeat, queryHash, "users")

	pipe := client.TxPipeline()
	countResult := pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, constants.SearchHeatWindow)
	pipe.SAdd(ctx, usersKey, userID)
	pipe.Expire(ctx, usersKey, constants.SearchHeatWindow)
	usersResult := pipe.SCard(ctx, usersKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return Heat{}, dberr.Wrap(err, "record search heat")
	}

	return Heat{
		Count: int(countResult.Val()),
		Users: int(usersResult.Val()),
	}, nil
}

// Peek reads the current heat without recording a sighting. The deferred
// retry path uses it to re-evaluate low-heat deferrals.
func (tracker *heatTracker) Peek(ctx context.Context, queryHash string) (Heat, error) {
	client := tracker.store.Client()

	count, err := client.Get(ctx, tracker.store.Key(constants.KeySearchHeat, queryHash, "count")).Int()
	if err != nil && !isRedisNil(err) {
		return Heat{}, dberr.Wrap(err, "read search heat count")
	}

	users, err := client.SCard(ctx, tracker.store.Key(constants.KeySearchHeat, queryHash, "users")).Result()
	if err != nil && !isRedisNil(err) {
		return Heat{}, dberr.Wrap(err, "read search heat users")
	}

	return Heat{Count: count, Users: int(users)}, nil
}
