// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

// Cache stores published result sets and the in-flight pending markers that
// coalesce concurrent identical searches.
type Cache struct {
	store *kv.KV
}

// NewCache constructs the search cache over the shared KV store.
func NewCache(store *kv.KV) *Cache {
	return &Cache{store: store}
}

// Get returns the cached hits for a query hash, or (nil, false) on a miss.
func (cache *Cache) Get(ctx context.Context, queryHash string) ([]Hit, bool, error) {
	raw, err := cache.store.Client().Get(ctx, cache.store.Key(constants.KeySearchCache, queryHash)).Bytes()
	if isRedisNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dberr.Wrap(err, "read search cache")
	}

	var hits []Hit
	if err := json.Unmarshal(raw, &hits); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, false, nil
	}
	return hits, true, nil
}

/*
Publish stores a result set and clears the pending marker.

Description: Rich result sets live for the long TTL; thin ones expire fast
so a source that was temporarily missing content gets re-asked soon. The
pending marker is deleted last, releasing any coalesced waiters onto the
fresh cache entry.
*/
func (cache *Cache) Publish(ctx context.Context, queryHash string, hits []Hit) error {
	if hits == nil {
		hits = []Hit{}
	}
	raw, err := json.Marshal(hits)
	if err != nil {
		return dberr.Wrap(err, "marshal search cache entry")
	}

	ttl := constants.SearchCacheTTLSparse
	if len(hits) >= constants.SearchRichResultCount {
		ttl = constants.SearchCacheTTLRich
	}

	client := cache.store.Client()
	if err := client.Set(ctx, cache.store.Key(constants.KeySearchCache, queryHash), raw, ttl).Err(); err != nil {
		return dberr.Wrap(err, "write search cache")
	}
	if err := client.Del(ctx, cache.store.Key(constants.KeySearchPending, queryHash)).Err(); err != nil {
		return dberr.Wrap(err, "clear search pending marker")
	}
	return nil
}

// MarkPending claims the in-flight marker for a query hash. The TTL covers
// a full external search, so a crashed worker cannot wedge the hash.
//
// Returns:
//   - bool: false when another dispatch already holds the marker.
func (cache *Cache) MarkPending(ctx context.Context, queryHash string) (bool, error) {
	claimed, err := cache.store.Client().SetNX(ctx,
		cache.store.Key(constants.KeySearchPending, queryHash),
		time.Now().Unix(),
		constants.ScrapeTimeout+constants.RateLimitMaxWait,
	).Result()
	if err != nil {
		return false, dberr.Wrap(err, "mark search pending")
	}
	return claimed, nil
}

// IsPending reports whether an identical search is already in flight.
func (cache *Cache) IsPending(ctx context.Context, queryHash string) (bool, error) {
	count, err := cache.store.Client().Exists(ctx, cache.store.Key(constants.KeySearchPending, queryHash)).Result()
	if err != nil {
		return false, dberr.Wrap(err, "check search pending")
	}
	return count > 0, nil
}

/*
WaitForResult polls the cache until the in-flight twin publishes, giving up
after the coalescing wait budget.

Returns:
  - []Hit, true when the twin published in time.
*/
func (cache *Cache) WaitForResult(ctx context.Context, queryHash string) ([]Hit, bool, error) {
	deadline := time.Now().Add(constants.SearchPendingWait)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		hits, found, err := cache.Get(ctx, queryHash)
		if err != nil {
			return nil, false, err
		}
		if found {
			return hits, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}
	}
}
