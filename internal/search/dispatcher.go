// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/pkg/normalize"
	"github.com/taibuivan/yomira-worker/pkg/pointer"
)

// localResultLimit bounds the catalog query per search.
const localResultLimit = 20

// # Collaborator Contracts

// Enqueuer is the slice of the queue facade the dispatcher needs.
type Enqueuer interface {
	Add(ctx context.Context, job queue.Job) (bool, error)
	Healthy(ctx context.Context) bool
}

// LocalCatalog serves catalog results without touching external sources.
type LocalCatalog interface {
	SearchSeries(ctx context.Context, query string, limit int) ([]*catalog.Series, error)
}

// # Request / Response

// Request is one user search.
type Request struct {
	Query     string
	Filters   Filters
	UserID    string
	ClientIP  string
	IsPremium bool
}

// Response is what the API layer renders.
type Response struct {
	// Hits are the results available right now.
	Hits []Hit
	// QueryHash identifies the query for follow-up polling.
	QueryHash string
	// Source says where Hits came from: "cache", "coalesced", or "local".
	Source string
	// Dispatched is true when an external enrichment job was enqueued.
	Dispatched bool
	// Deferred is true when enrichment was recorded for a later retry.
	Deferred bool
	// Reason explains a skipped dispatch ("noise", "rich_local", ...).
	Reason string
}

// # Dispatcher

// Dispatcher runs the gate chain that decides whether a search earns an
// external source request.
type Dispatcher struct {
	cache    *Cache
	heat     *heatTracker
	premium  *premiumGate
	deferred *deferredQueue
	local    LocalCatalog
	enqueuer Enqueuer
	store    *kv.KV
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher over the shared KV store.
func NewDispatcher(store *kv.KV, local LocalCatalog, enqueuer Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cache:    NewCache(store),
		heat:     &heatTracker{store: store},
		premium:  &premiumGate{store: store, now: time.Now},
		deferred: &deferredQueue{store: store, logger: logger},
		local:    local,
		enqueuer: enqueuer,
		store:    store,
		logger:   logger,
	}
}

// Cache exposes the result cache so the check-source worker can publish.
func (dispatcher *Dispatcher) Cache() *Cache { return dispatcher.cache }

// PublishResults stores an external result set under its query hash and
// releases any coalesced waiters onto it.
func (dispatcher *Dispatcher) PublishResults(ctx context.Context, queryHash string, hits []Hit) error {
	return dispatcher.cache.Publish(ctx, queryHash, hits)
}

// ReleasePremiumSlot returns a premium concurrency slot after an external
// search finishes. The check-source worker calls this.
func (dispatcher *Dispatcher) ReleasePremiumSlot(ctx context.Context, userID string) error {
	return dispatcher.premium.ReleaseSlot(ctx, userID)
}

/*
Dispatch serves a search and decides on external enrichment.

Description: Local results always come back immediately; the gate chain
only decides whether a check-source job is also enqueued. Gates in order:
cache, coalescing, intent (noise the local catalog can answer by substring
stops here), local richness, heat (forced intent and premium quota bypass
it), worker liveness, queue health, the per-IP cooldown, and premium
concurrency. Transient blocks (cold query, offline workers, unhealthy
queue, a premium user at the in-flight cap) become deferred entries; the
scheduler retries those.
*/
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, request Request) (*Response, error) {

	intent, query := ClassifyIntent(request.Query)
	queryHash := Fingerprint(query, request.Filters)

	// Gate 1: published cache.
	if hits, found, err := dispatcher.cache.Get(ctx, queryHash); err != nil {
		return nil, err
	} else if found {
		return &Response{Hits: hits, QueryHash: queryHash, Source: "cache"}, nil
	}

	// Gate 2: coalesce onto an in-flight twin.
	if pending, err := dispatcher.cache.IsPending(ctx, queryHash); err != nil {
		return nil, err
	} else if pending {
		if hits, published, err := dispatcher.cache.WaitForResult(ctx, queryHash); err != nil {
			return nil, err
		} else if published {
			return &Response{Hits: hits, QueryHash: queryHash, Source: "coalesced"}, nil
		}
		hits, err := dispatcher.searchLocal(ctx, query)
		if err != nil {
			return nil, err
		}
		return &Response{Hits: hits, QueryHash: queryHash, Source: "local", Reason: "pending"}, nil
	}

	// Local catalog pass.
	localHits, err := dispatcher.searchLocal(ctx, query)
	if err != nil {
		return nil, err
	}

	response := &Response{Hits: localHits, QueryHash: queryHash, Source: "local"}

	// Gate 3: a noise query the local catalog already answers by substring
	// never costs an external request. Noise nobody can answer locally
	// still rides the heat gate, where it either earns a dispatch or ages
	// out of the deferred set.
	if intent == IntentNoise && hasLocalSubstringMatch(localHits, query) {
		response.Reason = "noise"
		return response, nil
	}

	// Gate 4: a rich local result set needs no enrichment. Publishing it
	// also serves every coalesced follower from cache.
	if len(localHits) >= constants.SearchRichResultCount {
		if err := dispatcher.cache.Publish(ctx, queryHash, localHits); err != nil {
			return nil, err
		}
		response.Reason = "rich_local"
		return response, nil
	}

	// Gate 5: heat. Forced intent skips it; premium users may buy past it
	// with daily quota.
	if intent != IntentForced {
		heat, err := dispatcher.heat.Record(ctx, queryHash, request.UserID)
		if err != nil {
			return nil, err
		}
		if !heat.Hot() {
			bypass := false
			if request.IsPremium {
				bypass, err = dispatcher.premium.ConsumeQuota(ctx, request.UserID)
				if err != nil {
					return nil, err
				}
			}
			if !bypass {
				response.Deferred = true
				response.Reason = ReasonLowHeat
				return response, dispatcher.deferred.Defer(ctx, queryHash, DeferredEntry{
					Query:      query,
					Filters:    request.Filters,
					SkipReason: ReasonLowHeat,
					IsPremium:  request.IsPremium,
				})
			}
		}
	}

	// Gate 6: fleet liveness and queue depth.
	if reason, blocked, err := dispatcher.healthBlocked(ctx); err != nil {
		return nil, err
	} else if blocked {
		response.Deferred = true
		response.Reason = reason
		return response, dispatcher.deferred.Defer(ctx, queryHash, DeferredEntry{
			Query:      query,
			Filters:    request.Filters,
			SkipReason: reason,
			IsPremium:  request.IsPremium,
		})
	}

	// Gate 7: per-IP cooldown; repeat hammering of one query from one
	// client costs at most one dispatch per window.
	if request.ClientIP != "" {
		cooldownKey := dispatcher.store.Key(constants.KeySearchCooldown, request.ClientIP, queryHash)
		fresh, err := dispatcher.store.Client().SetNX(ctx, cooldownKey, 1, constants.SearchCooldownTTL).Result()
		if err != nil {
			return nil, dberr.Wrap(err, "set search cooldown")
		}
		if !fresh {
			response.Reason = "cooldown"
			return response, nil
		}
	}

	// Gate 8: premium in-flight cap. Over-cap searches are not dropped; the
	// scheduler retries them once the in-flight ones finish.
	slotHeld := false
	if request.IsPremium {
		slotHeld, err = dispatcher.premium.AcquireSlot(ctx, request.UserID)
		if err != nil {
			return nil, err
		}
		if !slotHeld {
			response.Deferred = true
			response.Reason = ReasonPremiumBusy
			return response, dispatcher.deferred.Defer(ctx, queryHash, DeferredEntry{
				Query:      query,
				Filters:    request.Filters,
				SkipReason: ReasonPremiumBusy,
				IsPremium:  request.IsPremium,
			})
		}
	}

	dispatched, err := dispatcher.enqueue(ctx, queryHash, query, request)
	if err != nil || !dispatched {
		if slotHeld {
			_ = dispatcher.premium.ReleaseSlot(ctx, request.UserID)
		}
		if err != nil {
			return nil, err
		}
		response.Reason = "pending"
		return response, nil
	}

	response.Dispatched = true
	return response, nil
}

/*
RetryDeferred replays a bounded sample of deferred searches.

Description: Called from the scheduler tick. Entries past the retry budget
are dropped. Low-heat entries re-check their heat first so a query nobody
asked about again just ages out. Anything that clears its original blocker
is dispatched with the same deterministic job ID it would have had.

Returns:
  - int: How many entries were dispatched this pass.
*/
func (dispatcher *Dispatcher) RetryDeferred(ctx context.Context) (int, error) {

	entries, err := dispatcher.deferred.Sample(ctx, constants.DeferredSearchPerTick)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for queryHash, entry := range entries {
		if entry.RetryCount >= constants.DeferredSearchMaxRetries {
			if err := dispatcher.deferred.Remove(ctx, queryHash); err != nil {
				return dispatched, err
			}
			dispatcher.logger.Info("search_deferred_dropped",
				slog.String("query_hash", queryHash),
				slog.String("reason", entry.SkipReason),
			)
			continue
		}

		ready, err := dispatcher.deferredReady(ctx, queryHash, entry)
		if err != nil {
			return dispatched, err
		}
		if !ready {
			entry.RetryCount++
			if err := dispatcher.deferred.Defer(ctx, queryHash, entry); err != nil {
				return dispatched, err
			}
			continue
		}

		added, err := dispatcher.enqueue(ctx, queryHash, entry.Query, Request{
			Query:     entry.Query,
			Filters:   entry.Filters,
			IsPremium: entry.IsPremium,
		})
		if err != nil {
			return dispatched, err
		}
		if err := dispatcher.deferred.Remove(ctx, queryHash); err != nil {
			return dispatched, err
		}
		if added {
			dispatched++
		}
	}

	return dispatched, nil
}

// # Helpers

// deferredReady reports whether a deferred entry's original blocker has
// cleared.
func (dispatcher *Dispatcher) deferredReady(ctx context.Context, queryHash string, entry DeferredEntry) (bool, error) {
	if entry.SkipReason == ReasonLowHeat {
		heat, err := dispatcher.heat.Peek(ctx, queryHash)
		if err != nil {
			return false, err
		}
		if !heat.Hot() {
			return false, nil
		}
	}

	_, blocked, err := dispatcher.healthBlocked(ctx)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// healthBlocked runs the liveness and queue-depth gates.
func (dispatcher *Dispatcher) healthBlocked(ctx context.Context) (string, bool, error) {
	online, err := dispatcher.store.AreWorkersOnline(ctx)
	if err != nil {
		return "", false, err
	}
	if !online {
		return ReasonWorkersOffline, true, nil
	}
	if !dispatcher.enqueuer.Healthy(ctx) {
		return ReasonQueueUnhealthy, true, nil
	}
	return "", false, nil
}

// enqueue claims the pending marker and enqueues the check-source job.
func (dispatcher *Dispatcher) enqueue(ctx context.Context, queryHash, query string, request Request) (bool, error) {
	claimed, err := dispatcher.cache.MarkPending(ctx, queryHash)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	priority := constants.PriorityStandard
	if request.IsPremium {
		priority = constants.PriorityCritical
	}

	added, err := dispatcher.enqueuer.Add(ctx, queue.Job{
		Kind:     constants.JobCheckSource,
		ID:       queue.SearchJobID(queryHash),
		Priority: priority,
		Payload: queue.CheckSourcePayload{
			Query:     query,
			QueryHash: queryHash,
			UserID:    request.UserID,
			IsPremium: request.IsPremium,
		},
	})
	if err != nil {
		return false, err
	}

	dispatcher.logger.Info("search_dispatched",
		slog.String("query_hash", queryHash),
		slog.Bool("premium", request.IsPremium),
		slog.Bool("deduplicated", !added),
	)
	return true, nil
}

// hasLocalSubstringMatch reports whether any local hit's normalized title
// contains the normalized query.
func hasLocalSubstringMatch(hits []Hit, query string) bool {
	normalized := normalize.Title(query)
	if normalized == "" {
		return false
	}
	for _, hit := range hits {
		if strings.Contains(normalize.Title(hit.Title), normalized) {
			return true
		}
	}
	return false
}

// searchLocal maps catalog rows onto response hits.
func (dispatcher *Dispatcher) searchLocal(ctx context.Context, query string) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}

	series, err := dispatcher.local.SearchSeries(ctx, query, localResultLimit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(series))
	for _, entry := range series {
		hits = append(hits, Hit{
			SeriesID: entry.ID,
			Title:    entry.Title,
			CoverURL: pointer.Val(entry.BestCoverURL),
		})
	}
	return hits, nil
}
