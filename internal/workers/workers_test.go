// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/ingest"
	"github.com/taibuivan/yomira-worker/internal/library"
	"github.com/taibuivan/yomira-worker/internal/notify"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/scraper"
	"github.com/taibuivan/yomira-worker/internal/search"
)

// # Fakes

type fakeIngestStore struct {
	sources   map[string]*ingest.SeriesSource
	known     map[string]bool // seriesID|number -> logical chapter exists
	finalized map[string]int  // sourceID -> reported chapter count
	failures  map[string]int
	covers    int

	lockContended bool // simulates another sync holding the advisory lock
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{
		sources:   make(map[string]*ingest.SeriesSource),
		known:     make(map[string]bool),
		finalized: make(map[string]int),
		failures:  make(map[string]int),
	}
}

func chapterKey(seriesID string, number float64) string {
	return fmt.Sprintf("%s|%g", seriesID, number)
}

func (store *fakeIngestStore) FindSource(_ context.Context, id string) (*ingest.SeriesSource, error) {
	source, found := store.sources[id]
	if !found {
		return nil, apperr.NotFound("Series source " + id)
	}
	copied := *source
	return &copied, nil
}

func (store *fakeIngestStore) IngestBatch(_ context.Context, source *ingest.SeriesSource, chapters []ingest.ChapterInput) ([]ingest.NewChapter, error) {
	var created []ingest.NewChapter
	for _, chapter := range chapters {
		key := chapterKey(source.SeriesID, chapter.Number)
		if store.known[key] {
			continue
		}
		store.known[key] = true
		created = append(created, ingest.NewChapter{
			LogicalChapterID: "lc-" + key,
			Number:           chapter.Number,
		})
	}
	return created, nil
}

func (store *fakeIngestStore) FinalizeSync(_ context.Context, sourceID string, chapterCount int, _ time.Time) error {
	store.finalized[sourceID] = chapterCount
	return nil
}

func (store *fakeIngestStore) RecordFailure(_ context.Context, sourceID string, _ time.Time) (int, error) {
	store.failures[sourceID]++
	return store.failures[sourceID], nil
}

func (store *fakeIngestStore) AdvanceLatestChapter(context.Context, string, float64) error {
	return nil
}

func (store *fakeIngestStore) RefreshBestCover(context.Context, string) error {
	store.covers++
	return nil
}

func (store *fakeIngestStore) WithSeriesLock(ctx context.Context, _ string, fn func(ctx context.Context) error) (bool, error) {
	if store.lockContended {
		return false, nil
	}
	return true, fn(ctx)
}

type fakeCatalogStore struct {
	listings map[string]*catalog.Listing // source|sourceID
	series   map[string]*catalog.Series
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		listings: make(map[string]*catalog.Listing),
		series:   make(map[string]*catalog.Series),
	}
}

func (store *fakeCatalogStore) FindListing(_ context.Context, sourceName, sourceID string) (*catalog.Listing, error) {
	listing, found := store.listings[sourceName+"|"+sourceID]
	if !found {
		return nil, apperr.NotFound("Listing")
	}
	return listing, nil
}

func (store *fakeCatalogStore) SearchSeries(context.Context, string, int) ([]*catalog.Series, error) {
	return nil, nil
}

func (store *fakeCatalogStore) CreateSeries(_ context.Context, series *catalog.Series) error {
	store.series[series.ID] = series
	return nil
}

func (store *fakeCatalogStore) UpsertListing(_ context.Context, listing catalog.NewListing) (*catalog.Listing, bool, error) {
	key := listing.SourceName + "|" + listing.SourceID
	if existing, found := store.listings[key]; found {
		return existing, false, nil
	}
	created := &catalog.Listing{ID: "ss-" + listing.SourceID, SeriesID: listing.SeriesID}
	store.listings[key] = created
	return created, true, nil
}

type fakeLibrary struct {
	subscribers []library.Subscriber
	read        map[string]bool // userID -> already read
}

func (store *fakeLibrary) Subscribers(context.Context, string, float64) ([]library.Subscriber, error) {
	return store.subscribers, nil
}

func (store *fakeLibrary) FilterUnread(_ context.Context, userIDs []string, _ string, _ float64) ([]string, error) {
	var unread []string
	for _, userID := range userIDs {
		if !store.read[userID] {
			unread = append(unread, userID)
		}
	}
	return unread, nil
}

func (store *fakeLibrary) AddEntry(context.Context, string, string) (bool, error)    { return true, nil }
func (store *fakeLibrary) RemoveEntry(context.Context, string, string) (bool, error) { return true, nil }
func (store *fakeLibrary) MarkRead(context.Context, string, string, float64) error   { return nil }

type fakeNotify struct {
	seen     map[string]bool // userID|chapterID dedup, mirrors the DB constraint
	inserted int
}

func (store *fakeNotify) CreateBatch(_ context.Context, notifications []notify.Notification) (int, error) {
	if store.seen == nil {
		store.seen = make(map[string]bool)
	}
	count := 0
	for _, notification := range notifications {
		key := notification.UserID + "|" + notification.LogicalChapterID
		if store.seen[key] {
			continue
		}
		store.seen[key] = true
		count++
	}
	store.inserted += count
	return count, nil
}

type fakeScraper struct {
	name   string
	series func(ctx context.Context, sourceID string) (*scraper.ScrapedSeries, error)
	search func(ctx context.Context, query string) ([]scraper.SearchHit, error)
}

func (s *fakeScraper) Name() string { return s.name }

func (s *fakeScraper) ScrapeSeries(ctx context.Context, sourceID string) (*scraper.ScrapedSeries, error) {
	return s.series(ctx, sourceID)
}

func (s *fakeScraper) SearchSeries(ctx context.Context, query string) ([]scraper.SearchHit, error) {
	return s.search(ctx, query)
}

type fakeScrapers struct {
	adapters map[string]scraper.Scraper
	order    []string
}

func (f *fakeScrapers) Get(source string) (scraper.Scraper, error) {
	adapter, found := f.adapters[source]
	if !found {
		return nil, apperr.NotFound("Scraper for source " + source)
	}
	return adapter, nil
}

func (f *fakeScrapers) Sources() []string { return f.order }

type fakeLimiter struct {
	denied map[string]bool
}

func (limiter *fakeLimiter) Acquire(_ context.Context, source string) (bool, error) {
	return !limiter.denied[source], nil
}

type fakeEnqueuer struct {
	jobs []queue.Job
	seen map[string]bool
}

func (enqueuer *fakeEnqueuer) Add(_ context.Context, job queue.Job) (bool, error) {
	if enqueuer.seen == nil {
		enqueuer.seen = make(map[string]bool)
	}
	if job.ID != "" && enqueuer.seen[job.ID] {
		return false, nil
	}
	enqueuer.seen[job.ID] = true
	enqueuer.jobs = append(enqueuer.jobs, job)
	return true, nil
}

func (enqueuer *fakeEnqueuer) AddBulk(ctx context.Context, jobs []queue.Job) (int, error) {
	added := 0
	for _, job := range jobs {
		ok, err := enqueuer.Add(ctx, job)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (enqueuer *fakeEnqueuer) ofKind(kind string) []queue.Job {
	var matched []queue.Job
	for _, job := range enqueuer.jobs {
		if job.Kind == kind {
			matched = append(matched, job)
		}
	}
	return matched
}

type fakeResults struct {
	published map[string][]search.Hit
	released  []string
}

func (results *fakeResults) PublishResults(_ context.Context, queryHash string, hits []search.Hit) error {
	if results.published == nil {
		results.published = make(map[string][]search.Hit)
	}
	results.published[queryHash] = hits
	return nil
}

func (results *fakeResults) ReleasePremiumSlot(_ context.Context, userID string) error {
	results.released = append(results.released, userID)
	return nil
}

// # Fixture

type fixture struct {
	workers  *Workers
	ingest   *fakeIngestStore
	catalog  *fakeCatalogStore
	library  *fakeLibrary
	notify   *fakeNotify
	scrapers *fakeScrapers
	limiter  *fakeLimiter
	enqueuer *fakeEnqueuer
	results  *fakeResults
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		ingest:   newFakeIngestStore(),
		catalog:  newFakeCatalogStore(),
		library:  &fakeLibrary{read: make(map[string]bool)},
		notify:   &fakeNotify{},
		scrapers: &fakeScrapers{adapters: make(map[string]scraper.Scraper)},
		limiter:  &fakeLimiter{denied: make(map[string]bool)},
		enqueuer: &fakeEnqueuer{},
		results:  &fakeResults{},
	}
	f.workers = New(
		ingest.NewService(f.ingest, logger),
		catalog.NewService(f.catalog, logger),
		f.library,
		f.notify,
		f.scrapers,
		f.limiter,
		f.enqueuer,
		f.results,
		logger,
	)
	return f
}

func (f *fixture) addScraper(s *fakeScraper) {
	f.scrapers.adapters[s.name] = s
	f.scrapers.order = append(f.scrapers.order, s.name)
}

func taskFor(t *testing.T, kind string, payload any) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(kind, body)
}

// # Check-Source

func TestHandleCheckSource_PublishesAndChainsCanonicalize(t *testing.T) {
	f := newFixture(t)
	f.addScraper(&fakeScraper{
		name: "mangadex",
		search: func(context.Context, string) ([]scraper.SearchHit, error) {
			return []scraper.SearchHit{{SourceID: "md-1", Title: "Solo Leveling", SourceURL: "https://mangadex.org/title/md-1"}}, nil
		},
	})
	f.addScraper(&fakeScraper{
		name: "comick",
		search: func(context.Context, string) ([]scraper.SearchHit, error) {
			return []scraper.SearchHit{{SourceID: "solo-leveling", Title: "Solo Leveling"}}, nil
		},
	})

	task := taskFor(t, constants.JobCheckSource, queue.CheckSourcePayload{
		Query: "solo leveling", QueryHash: "abc123", UserID: "u1", IsPremium: true,
	})
	require.NoError(t, f.workers.HandleCheckSource(context.Background(), task))

	assert.Len(t, f.results.published["abc123"], 2)
	assert.Equal(t, []string{"u1"}, f.results.released)

	canon := f.enqueuer.ofKind(constants.JobCanonicalize)
	require.Len(t, canon, 2)
	assert.Equal(t, queue.CanonicalizeJobID("mangadex", "md-1"), canon[0].ID)
	assert.Equal(t, queue.CanonicalizeJobID("comick", "solo-leveling"), canon[1].ID)
}

func TestHandleCheckSource_PartialSourceFailureStillPublishes(t *testing.T) {
	f := newFixture(t)
	f.addScraper(&fakeScraper{
		name: "mangadex",
		search: func(context.Context, string) ([]scraper.SearchHit, error) {
			return nil, apperr.UpstreamBlocked("mangadex returned 503", nil)
		},
	})
	f.addScraper(&fakeScraper{
		name: "comick",
		search: func(context.Context, string) ([]scraper.SearchHit, error) {
			return []scraper.SearchHit{{SourceID: "x", Title: "X"}}, nil
		},
	})

	task := taskFor(t, constants.JobCheckSource, queue.CheckSourcePayload{Query: "x", QueryHash: "h1"})
	require.NoError(t, f.workers.HandleCheckSource(context.Background(), task))

	assert.Len(t, f.results.published["h1"], 1)
}

func TestHandleCheckSource_AllSourcesBlockedFailsRetryably(t *testing.T) {
	f := newFixture(t)
	f.addScraper(&fakeScraper{
		name: "mangadex",
		search: func(context.Context, string) ([]scraper.SearchHit, error) {
			return nil, apperr.UpstreamBlocked("mangadex returned 403", nil)
		},
	})
	f.limiter.denied["comick"] = true
	f.addScraper(&fakeScraper{name: "comick"})

	task := taskFor(t, constants.JobCheckSource, queue.CheckSourcePayload{
		Query: "x", QueryHash: "h2", UserID: "u1", IsPremium: true,
	})
	err := f.workers.HandleCheckSource(context.Background(), task)

	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.Empty(t, f.results.published)
	// The slot stays held across retries of the same in-flight search.
	assert.Empty(t, f.results.released)
}

// # Canonicalize

func TestHandleCanonicalize_NewListingSchedulesFirstSync(t *testing.T) {
	f := newFixture(t)

	task := taskFor(t, constants.JobCanonicalize, queue.CanonicalizePayload{
		SourceName: "mangadex", SourceID: "md-1", Title: "Frieren",
	})
	require.NoError(t, f.workers.HandleCanonicalize(context.Background(), task))

	syncs := f.enqueuer.ofKind(constants.JobSyncSource)
	require.Len(t, syncs, 1)
	assert.Equal(t, queue.SyncJobID("ss-md-1"), syncs[0].ID)

	// Replaying the same hit converges on the existing listing; no new sync.
	require.NoError(t, f.workers.HandleCanonicalize(context.Background(), task))
	assert.Len(t, f.enqueuer.ofKind(constants.JobSyncSource), 1)
}

// # Sync-Source

func syncFixture(t *testing.T, chapters []scraper.ScrapedChapter, scrapeErr error) *fixture {
	t.Helper()
	f := newFixture(t)
	f.ingest.sources["ss-1"] = &ingest.SeriesSource{
		ID: "ss-1", SeriesID: "series-1", SourceName: "mangadex", SourceID: "md-1", SyncPriority: ingest.TierWarm,
	}
	f.addScraper(&fakeScraper{
		name: "mangadex",
		series: func(context.Context, string) (*scraper.ScrapedSeries, error) {
			if scrapeErr != nil {
				return nil, scrapeErr
			}
			return &scraper.ScrapedSeries{SourceID: "md-1", Title: "Frieren", Chapters: chapters}, nil
		},
	})
	return f
}

func TestHandleSyncSource_NewChaptersFanOut(t *testing.T) {
	f := syncFixture(t, []scraper.ScrapedChapter{
		{Number: 1, URL: "https://mangadex.org/ch/1", Language: "en"},
		{Number: 2, URL: "https://mangadex.org/ch/2", Language: "en"},
	}, nil)
	// Chapter 1 already ingested on an earlier sync.
	f.ingest.known[chapterKey("series-1", 1)] = true

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "ss-1"})
	require.NoError(t, f.workers.HandleSyncSource(context.Background(), task))

	fanouts := f.enqueuer.ofKind(constants.JobNotificationFanout)
	require.Len(t, fanouts, 1)

	payload, ok := fanouts[0].Payload.(queue.FanoutPayload)
	require.True(t, ok)
	assert.Equal(t, "series-1", payload.SeriesID)
	assert.Equal(t, "Frieren", payload.SeriesTitle)
	assert.Equal(t, float64(2), payload.ChapterNumber)

	assert.Equal(t, 2, f.ingest.finalized["ss-1"])
}

func TestHandleSyncSource_ReplayProducesNoFanout(t *testing.T) {
	f := syncFixture(t, []scraper.ScrapedChapter{
		{Number: 1, URL: "https://mangadex.org/ch/1", Language: "en"},
	}, nil)

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "ss-1"})
	require.NoError(t, f.workers.HandleSyncSource(context.Background(), task))
	require.NoError(t, f.workers.HandleSyncSource(context.Background(), task))

	assert.Len(t, f.enqueuer.ofKind(constants.JobNotificationFanout), 1)
}

func TestHandleSyncSource_ManualRefreshFansOut(t *testing.T) {
	f := syncFixture(t, []scraper.ScrapedChapter{
		{Number: 1, URL: "https://mangadex.org/ch/1", Language: "en"},
	}, nil)

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "ss-1", Manual: true})
	require.NoError(t, f.workers.HandleSyncSource(context.Background(), task))

	assert.Len(t, f.enqueuer.ofKind(constants.JobNotificationFanout), 1)
	assert.Equal(t, 1, f.ingest.finalized["ss-1"])
}

func TestHandleSyncSource_ManualRefreshYieldsToRunningSync(t *testing.T) {
	f := syncFixture(t, []scraper.ScrapedChapter{
		{Number: 1, URL: "https://mangadex.org/ch/1", Language: "en"},
	}, nil)
	f.ingest.lockContended = true

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "ss-1", Manual: true})
	require.NoError(t, f.workers.HandleSyncSource(context.Background(), task))

	assert.Empty(t, f.enqueuer.jobs)
	assert.Zero(t, f.ingest.finalized["ss-1"])
}

func TestHandleSyncSource_ScrapeFailureRecordsBackoff(t *testing.T) {
	f := syncFixture(t, nil, apperr.UpstreamBlocked("mangadex returned 503", nil))

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "ss-1"})
	err := f.workers.HandleSyncSource(context.Background(), task)

	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, 1, f.ingest.failures["ss-1"])
	assert.Empty(t, f.enqueuer.jobs)
}

func TestHandleSyncSource_UnknownSource(t *testing.T) {
	f := newFixture(t)

	task := taskFor(t, constants.JobSyncSource, queue.SyncSourcePayload{SeriesSourceID: "nope"})
	err := f.workers.HandleSyncSource(context.Background(), task)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.False(t, apperr.IsRetryable(err))
}

// # Fan-Out

func TestHandleNotificationFanout_SplitsAudiencesAndChunks(t *testing.T) {
	f := newFixture(t)
	for i := range 1201 {
		f.library.subscribers = append(f.library.subscribers, library.Subscriber{
			UserID: fmt.Sprintf("free-%d", i),
		})
	}
	f.library.subscribers = append(f.library.subscribers,
		library.Subscriber{UserID: "vip-1", IsPremium: true},
		library.Subscriber{UserID: "vip-2", IsPremium: true},
	)

	task := taskFor(t, constants.JobNotificationFanout, queue.FanoutPayload{
		SeriesID: "series-1", SeriesTitle: "Frieren", LogicalChapterID: "lc-9", ChapterNumber: 9,
	})
	require.NoError(t, f.workers.HandleNotificationFanout(context.Background(), task))

	free := f.enqueuer.ofKind(constants.JobNotificationDelivery)
	require.Len(t, free, 3)
	for _, job := range free {
		assert.Equal(t, constants.PriorityStandard, job.Priority)
	}
	assert.Len(t, free[0].Payload.(queue.DeliveryPayload).UserIDs, constants.DeliveryChunkSize)
	assert.Len(t, free[2].Payload.(queue.DeliveryPayload).UserIDs, 201)

	vip := f.enqueuer.ofKind(constants.JobNotificationDeliveryVIP)
	require.Len(t, vip, 1)
	assert.Equal(t, constants.PriorityCritical, vip[0].Priority)
	assert.Len(t, vip[0].Payload.(queue.DeliveryPayload).UserIDs, 2)

	// Replay regenerates the same deterministic chunk IDs; nothing doubles.
	require.NoError(t, f.workers.HandleNotificationFanout(context.Background(), task))
	assert.Len(t, f.enqueuer.ofKind(constants.JobNotificationDelivery), 3)
}

func TestHandleNotificationFanout_NoSubscribers(t *testing.T) {
	f := newFixture(t)

	task := taskFor(t, constants.JobNotificationFanout, queue.FanoutPayload{
		SeriesID: "series-1", LogicalChapterID: "lc-9", ChapterNumber: 9,
	})
	require.NoError(t, f.workers.HandleNotificationFanout(context.Background(), task))

	assert.Empty(t, f.enqueuer.jobs)
}

// # Delivery

func TestHandleNotificationDelivery_RechecksReadState(t *testing.T) {
	f := newFixture(t)
	// u2 finished the chapter between fan-out and delivery.
	f.library.read["u2"] = true

	task := taskFor(t, constants.JobNotificationDelivery, queue.DeliveryPayload{
		UserIDs: []string{"u1", "u2", "u3"}, SeriesID: "series-1", SeriesTitle: "Frieren",
		LogicalChapterID: "lc-9", ChapterNumber: 9,
	})
	require.NoError(t, f.workers.HandleNotificationDelivery(context.Background(), task))
	assert.Equal(t, 2, f.notify.inserted)

	// Replay inserts nothing thanks to the natural-key constraint.
	require.NoError(t, f.workers.HandleNotificationDelivery(context.Background(), task))
	assert.Equal(t, 2, f.notify.inserted)
}

// # Chapter-Ingest

func TestHandleChapterIngest_FanoutOnlyWhenNew(t *testing.T) {
	f := newFixture(t)
	f.ingest.sources["ss-1"] = &ingest.SeriesSource{
		ID: "ss-1", SeriesID: "series-1", SourceName: "mangadex", SourceID: "md-1", SyncPriority: ingest.TierHot,
	}

	task := taskFor(t, constants.JobChapterIngest, queue.ChapterIngestPayload{
		SeriesSourceID: "ss-1", SeriesTitle: "Frieren", Number: 12.5,
		URL: "https://mangadex.org/ch/12.5", Language: "en",
	})
	require.NoError(t, f.workers.HandleChapterIngest(context.Background(), task))
	require.Len(t, f.enqueuer.ofKind(constants.JobNotificationFanout), 1)

	require.NoError(t, f.workers.HandleChapterIngest(context.Background(), task))
	assert.Len(t, f.enqueuer.ofKind(constants.JobNotificationFanout), 1)
}

// # Serve Middleware

func TestServe_MapsErrorKindsOntoRetryDecision(t *testing.T) {
	f := newFixture(t)

	handlerReturning := func(err error) asynq.Handler {
		return asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return err })
	}
	task := asynq.NewTask("probe", nil)

	t.Run("retryable_propagates", func(t *testing.T) {
		err := f.workers.serve(handlerReturning(apperr.TransientDB(errors.New("deadlock")))).
			ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("permanent_skips_retry", func(t *testing.T) {
		err := f.workers.serve(handlerReturning(apperr.NotFound("Series source"))).
			ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("cancellation_stays_retryable", func(t *testing.T) {
		err := f.workers.serve(handlerReturning(context.Canceled)).
			ProcessTask(context.Background(), task)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("success_passes_through", func(t *testing.T) {
		err := f.workers.serve(handlerReturning(nil)).ProcessTask(context.Background(), task)
		assert.NoError(t, err)
	})
}
