// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// fakeCatalog serves a fixed local result set.
type fakeCatalog struct {
	results []*catalog.Series
}

func (f *fakeCatalog) SearchSeries(ctx context.Context, query string, limit int) ([]*catalog.Series, error) {
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

// fakeEnqueuer records jobs and reports scripted health.
type fakeEnqueuer struct {
	jobs    []queue.Job
	healthy bool
}

func (f *fakeEnqueuer) Add(ctx context.Context, job queue.Job) (bool, error) {
	for _, existing := range f.jobs {
		if existing.ID == job.ID {
			return false, nil
		}
	}
	f.jobs = append(f.jobs, job)
	return true, nil
}

func (f *fakeEnqueuer) Healthy(ctx context.Context) bool { return f.healthy }

type dispatcherFixture struct {
	dispatcher *Dispatcher
	enqueuer   *fakeEnqueuer
	catalog    *fakeCatalog
	server     *miniredis.Miniredis
	store      *kv.KV
}

func newFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := kv.New(client, "test")
	enqueuer := &fakeEnqueuer{healthy: true}
	local := &fakeCatalog{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fixture := &dispatcherFixture{
		dispatcher: NewDispatcher(store, local, enqueuer, logger),
		enqueuer:   enqueuer,
		catalog:    local,
		server:     server,
		store:      store,
	}
	fixture.markWorkersOnline(t)
	return fixture
}

// markWorkersOnline plants a fresh heartbeat so the liveness gate passes.
func (fixture *dispatcherFixture) markWorkersOnline(t *testing.T) {
	t.Helper()
	err := fixture.store.Beat(context.Background(), 1, "ok")
	require.NoError(t, err)
}

// heatUp records enough sightings from distinct users to make a query hot.
func (fixture *dispatcherFixture) heatUp(t *testing.T, query string, filters Filters) {
	t.Helper()
	tracker := &heatTracker{store: fixture.store}
	hash := Fingerprint(query, filters)
	for i := 0; i < constants.SearchHeatMinCount+1; i++ {
		_, err := tracker.Record(context.Background(), hash, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}
}

/*
TestDispatch_NoiseWithLocalMatchShortCircuits verifies a too-short query the
catalog already answers by substring is served locally without dispatching
or deferring anything.
*/
func TestDispatch_NoiseWithLocalMatchShortCircuits(t *testing.T) {
	fixture := newFixture(t)
	fixture.catalog.results = []*catalog.Series{{ID: "s1", Title: "Berserk"}}

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "be", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, response.Dispatched)
	assert.False(t, response.Deferred)
	assert.Equal(t, "noise", response.Reason)
	require.Len(t, response.Hits, 1)
	assert.Empty(t, fixture.enqueuer.jobs)
}

/*
TestDispatch_NoiseWithoutLocalMatchFallsToHeat verifies a too-short query
nobody can answer locally still rides the heat gate instead of being dropped
outright, so it can age out of or graduate from the deferred set.
*/
func TestDispatch_NoiseWithoutLocalMatchFallsToHeat(t *testing.T) {
	fixture := newFixture(t)

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "zz", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, response.Dispatched)
	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonLowHeat, response.Reason)
	assert.Empty(t, fixture.enqueuer.jobs)
}

func TestDispatch_CacheHitShortCircuits(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	hash := Fingerprint("solo leveling", Filters{})
	require.NoError(t, fixture.dispatcher.Cache().Publish(ctx, hash, []Hit{{Title: "Solo Leveling"}}))

	response, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "Solo  Leveling!", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "cache", response.Source)
	require.Len(t, response.Hits, 1)
	assert.Empty(t, fixture.enqueuer.jobs)
}

/*
TestDispatch_RichLocalSkipsExternal verifies a query the catalog can answer
richly is cached and never dispatched externally.
*/
func TestDispatch_RichLocalSkipsExternal(t *testing.T) {
	fixture := newFixture(t)
	for i := 0; i < constants.SearchRichResultCount; i++ {
		fixture.catalog.results = append(fixture.catalog.results, &catalog.Series{
			ID: fmt.Sprintf("s%d", i), Title: fmt.Sprintf("Series %d", i),
		})
	}

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "popular query", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "rich_local", response.Reason)
	assert.False(t, response.Dispatched)
	assert.Empty(t, fixture.enqueuer.jobs)

	// The published entry now serves the next identical search from cache.
	replay, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "popular query", UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "cache", replay.Source)
}

/*
TestDispatch_ColdQueryIsDeferred verifies a first-sighting query does not
dispatch and lands in the deferred set instead.
*/
func TestDispatch_ColdQueryIsDeferred(t *testing.T) {
	fixture := newFixture(t)

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "obscure title", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, response.Dispatched)
	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonLowHeat, response.Reason)
	assert.Empty(t, fixture.enqueuer.jobs)
}

/*
TestDispatch_HotQueryDispatchesOnce verifies a hot query dispatches exactly
one deduplicated job no matter how many users race it.
*/
func TestDispatch_HotQueryDispatchesOnce(t *testing.T) {
	fixture := newFixture(t)
	fixture.heatUp(t, "one piece", Filters{})

	first, err := fixture.dispatcher.Dispatch(context.Background(), Request{
		Query: "one piece", UserID: "u9", ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.True(t, first.Dispatched)
	require.Len(t, fixture.enqueuer.jobs, 1)

	job := fixture.enqueuer.jobs[0]
	assert.Equal(t, constants.JobCheckSource, job.Kind)
	assert.Equal(t, queue.SearchJobID(first.QueryHash), job.ID)
	assert.Equal(t, constants.PriorityStandard, job.Priority)
}

func TestDispatch_ForcedIntentBypassesHeat(t *testing.T) {
	fixture := newFixture(t)

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{
		Query: "follow: brand new series", UserID: "u1", ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)

	assert.True(t, response.Dispatched)
	require.Len(t, fixture.enqueuer.jobs, 1)
	var payload queue.CheckSourcePayload
	payload, _ = fixture.enqueuer.jobs[0].Payload.(queue.CheckSourcePayload)
	assert.Equal(t, "brand new series", payload.Query)
}

/*
TestDispatch_PremiumQuotaBypassesHeat verifies premium users dispatch cold
queries until their daily budget runs out.
*/
func TestDispatch_PremiumQuotaBypassesHeat(t *testing.T) {
	fixture := newFixture(t)

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{
		Query: "cold premium query", UserID: "vip", IsPremium: true, ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.True(t, response.Dispatched)
	assert.Equal(t, constants.PriorityCritical, fixture.enqueuer.jobs[0].Priority)
}

func TestDispatch_PremiumQuotaExhausts(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	// Burn the full daily budget.
	gate := &premiumGate{store: fixture.store, now: time.Now}
	for i := 0; i < constants.PremiumDailyQuota; i++ {
		allowed, err := gate.ConsumeQuota(ctx, "vip")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	response, err := fixture.dispatcher.Dispatch(ctx, Request{
		Query: "past the budget", UserID: "vip", IsPremium: true,
	})
	require.NoError(t, err)
	assert.False(t, response.Dispatched)
	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonLowHeat, response.Reason)
}

/*
TestDispatch_PremiumOverCapDefers verifies a premium user at the in-flight
cap is deferred for a scheduler retry rather than silently dropped.
*/
func TestDispatch_PremiumOverCapDefers(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	gate := &premiumGate{store: fixture.store, now: time.Now}
	for i := 0; i < constants.PremiumMaxConcurrent; i++ {
		held, err := gate.AcquireSlot(ctx, "vip")
		require.NoError(t, err)
		require.True(t, held)
	}

	fixture.heatUp(t, "one piece", Filters{})
	response, err := fixture.dispatcher.Dispatch(ctx, Request{
		Query: "one piece", UserID: "vip", IsPremium: true, ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)

	assert.False(t, response.Dispatched)
	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonPremiumBusy, response.Reason)
	assert.Empty(t, fixture.enqueuer.jobs)
}

func TestDispatch_WorkersOfflineDefers(t *testing.T) {
	fixture := newFixture(t)
	fixture.heatUp(t, "one piece", Filters{})

	// Expire the heartbeat.
	fixture.server.FastForward(constants.HeartbeatTTL + time.Second)

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "one piece", UserID: "u1"})
	require.NoError(t, err)

	assert.False(t, response.Dispatched)
	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonWorkersOffline, response.Reason)
}

func TestDispatch_UnhealthyQueueDefers(t *testing.T) {
	fixture := newFixture(t)
	fixture.heatUp(t, "one piece", Filters{})
	fixture.enqueuer.healthy = false

	response, err := fixture.dispatcher.Dispatch(context.Background(), Request{Query: "one piece", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, response.Deferred)
	assert.Equal(t, ReasonQueueUnhealthy, response.Reason)
}

/*
TestDispatch_CooldownSuppressesRepeat verifies the same client hammering the
same query dispatches at most once per cooldown window.
*/
func TestDispatch_CooldownSuppressesRepeat(t *testing.T) {
	fixture := newFixture(t)
	fixture.heatUp(t, "one piece", Filters{})
	ctx := context.Background()

	first, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "one piece", UserID: "u1", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	require.True(t, first.Dispatched)

	// Clear the pending marker as if the worker finished, then repeat.
	require.NoError(t, fixture.store.Client().Del(ctx, fixture.store.Key(constants.KeySearchPending, first.QueryHash)).Err())

	second, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "one piece", UserID: "u1", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, second.Dispatched)
	assert.Equal(t, "cooldown", second.Reason)

	// A different client is not bound by the first client's cooldown.
	third, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "one piece", UserID: "u2", ClientIP: "10.0.0.2"})
	require.NoError(t, err)
	assert.True(t, third.Dispatched)
}

/*
TestDispatch_PendingCoalesces verifies a second identical search while one
is in flight waits for (and returns) the published result instead of
enqueueing a second job.
*/
func TestDispatch_PendingCoalesces(t *testing.T) {
	fixture := newFixture(t)
	fixture.heatUp(t, "one piece", Filters{})
	ctx := context.Background()

	first, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "one piece", UserID: "u1", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	require.True(t, first.Dispatched)

	// Publish from a background "worker" shortly after the second request
	// starts waiting.
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = fixture.dispatcher.Cache().Publish(ctx, first.QueryHash, []Hit{{Title: "One Piece"}})
	}()

	second, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "one piece", UserID: "u2", ClientIP: "10.0.0.2"})
	require.NoError(t, err)

	assert.Equal(t, "coalesced", second.Source)
	require.Len(t, second.Hits, 1)
	assert.Len(t, fixture.enqueuer.jobs, 1, "no second job")
}

/*
TestRetryDeferred_LowHeatAgesOutOrDispatches covers both deferred retry
outcomes: an entry whose query went hot dispatches, and an entry past the
retry budget is dropped.
*/
func TestRetryDeferred_LowHeatAgesOutOrDispatches(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	// Cold dispatch records a deferred entry.
	cold, err := fixture.dispatcher.Dispatch(ctx, Request{Query: "sleeper hit", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, cold.Deferred)

	// Still cold: the retry pass only bumps the retry count.
	dispatched, err := fixture.dispatcher.RetryDeferred(ctx)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Empty(t, fixture.enqueuer.jobs)

	// The query heats up; the next pass dispatches and clears the entry.
	fixture.heatUp(t, "sleeper hit", Filters{})
	dispatched, err = fixture.dispatcher.RetryDeferred(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	require.Len(t, fixture.enqueuer.jobs, 1)

	// Nothing left to retry.
	dispatched, err = fixture.dispatcher.RetryDeferred(ctx)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}

func TestRetryDeferred_DropsAfterBudget(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	queryHash := Fingerprint("never hot", Filters{})
	deferred := &deferredQueue{store: fixture.store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, deferred.Defer(ctx, queryHash, DeferredEntry{
		Query:      "never hot",
		SkipReason: ReasonLowHeat,
		RetryCount: constants.DeferredSearchMaxRetries,
	}))

	_, err := fixture.dispatcher.RetryDeferred(ctx)
	require.NoError(t, err)

	entries, err := deferred.Sample(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
