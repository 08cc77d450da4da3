// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package search implements the heat-gated search dispatcher.

Local catalog results are always served immediately. The expensive decision
this package owns is whether a query also earns an external source search,
which costs rate-limit tokens on third-party sites. The gates, in order:
result cache, request coalescing, intent (noise the local catalog already
answers by substring stops here), local richness, query heat (bypassable
by premium quota), worker and queue health, a per-IP cooldown, and premium
concurrency. A query that passes every gate becomes exactly one
deduplicated check-source job; a query blocked by a transient gate, a
premium user at the in-flight cap included, becomes a deferred entry the
scheduler retries later.
*/
package search

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Hit is one cached/published search result entry.
type Hit struct {
	SeriesID   string `json:"series_id,omitempty"`
	Title      string `json:"title"`
	CoverURL   string `json:"cover_url,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
}

// Skip reasons recorded on deferred entries.
const (
	ReasonLowHeat        = "low_heat"
	ReasonWorkersOffline = "workers_offline"
	ReasonQueueUnhealthy = "queue_unhealthy"
	ReasonPremiumBusy    = "premium_concurrency"
)

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
