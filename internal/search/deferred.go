// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

// DeferredEntry is a search that could not dispatch externally and is
// waiting for conditions to change.
type DeferredEntry struct {
	Query      string    `json:"query"`
	Filters    Filters   `json:"filters"`
	SkipReason string    `json:"skip_reason"`
	IsPremium  bool      `json:"is_premium"`
	RetryCount int       `json:"retry_count"`
	DeferredAt time.Time `json:"deferred_at"`
}

// deferredQueue is the KV-backed set of deferred searches, keyed by query
// hash so a query deferred many times holds one slot.
type deferredQueue struct {
	store  *kv.KV
	logger *slog.Logger
}

// Defer records (or refreshes) a deferred entry for a query hash.
func (queue *deferredQueue) Defer(ctx context.Context, queryHash string, entry DeferredEntry) error {
	entry.DeferredAt = time.Now()

	raw, err := json.Marshal(entry)
	if err != nil {
		return dberr.Wrap(err, "marshal deferred search entry")
	}

	key := queue.store.Key(constants.KeySearchDeferred)
	client := queue.store.Client()

	pipe := client.TxPipeline()
	pipe.HSet(ctx, key, queryHash, raw)
	pipe.Expire(ctx, key, constants.DeferredSearchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return dberr.Wrap(err, "record deferred search")
	}

	queue.logger.Debug("search_deferred",
		slog.String("query_hash", queryHash),
		slog.String("reason", entry.SkipReason),
		slog.Int("retry_count", entry.RetryCount),
	)
	return nil
}

// Sample returns up to limit deferred entries without removing them.
func (queue *deferredQueue) Sample(ctx context.Context, limit int) (map[string]DeferredEntry, error) {
	key := queue.store.Key(constants.KeySearchDeferred)

	// HSCAN keeps one tick from slurping an unbounded hash into memory.
	fields, _, err := queue.store.Client().HScan(ctx, key, 0, "", int64(limit)).Result()
	if err != nil {
		return nil, dberr.Wrap(err, "scan deferred searches")
	}

	entries := make(map[string]DeferredEntry)
	for i := 0; i+1 < len(fields) && len(entries) < limit; i += 2 {
		var entry DeferredEntry
		if err := json.Unmarshal([]byte(fields[i+1]), &entry); err != nil {
			// Unreadable entries are dropped rather than retried forever.
			_ = queue.Remove(ctx, fields[i])
			continue
		}
		entries[fields[i]] = entry
	}

	return entries, nil
}

// Remove deletes a deferred entry.
func (queue *deferredQueue) Remove(ctx context.Context, queryHash string) error {
	err := queue.store.Client().HDel(ctx, queue.store.Key(constants.KeySearchDeferred), queryHash).Err()
	return dberr.Wrap(err, "remove deferred search")
}
