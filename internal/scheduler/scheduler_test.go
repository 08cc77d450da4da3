// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/queue"
)

// # Fakes

type fakeStore struct {
	due        []DueSource
	claims     int
	covers     []string
	promoteErr error
	promoted   int
}

func (store *fakeStore) ClaimDueSources(_ context.Context, limit int) ([]DueSource, error) {
	store.claims++
	if len(store.due) > limit {
		return store.due[:limit], nil
	}
	return store.due, nil
}

func (store *fakeStore) PromoteHot(context.Context, int) (int, error) {
	if store.promoteErr != nil {
		return 0, store.promoteErr
	}
	return store.promoted, nil
}

func (store *fakeStore) DemoteStale(context.Context) (int, int, error) { return 0, 0, nil }

func (store *fakeStore) SeriesMissingCovers(_ context.Context, limit int) ([]string, error) {
	if len(store.covers) > limit {
		return store.covers[:limit], nil
	}
	return store.covers, nil
}

type fakeJobs struct {
	jobs   []queue.Job
	seen   map[string]bool
	stats  []queue.BandStats
	pruned int
}

func (jobs *fakeJobs) AddBulk(_ context.Context, batch []queue.Job) (int, error) {
	if jobs.seen == nil {
		jobs.seen = make(map[string]bool)
	}
	added := 0
	for _, job := range batch {
		if job.ID != "" && jobs.seen[job.ID] {
			continue
		}
		jobs.seen[job.ID] = true
		jobs.jobs = append(jobs.jobs, job)
		added++
	}
	return added, nil
}

func (jobs *fakeJobs) Stats(context.Context) ([]queue.BandStats, error) {
	return jobs.stats, nil
}

func (jobs *fakeJobs) PruneDeadLetters(context.Context) (int, error) {
	jobs.pruned++
	return 0, nil
}

func (jobs *fakeJobs) ofKind(kind string) []queue.Job {
	var matched []queue.Job
	for _, job := range jobs.jobs {
		if job.Kind == kind {
			matched = append(matched, job)
		}
	}
	return matched
}

type fakeRetrier struct {
	dispatched int
}

func (retrier *fakeRetrier) RetryDeferred(context.Context) (int, error) {
	retrier.dispatched++
	return 0, nil
}

// # Fixture

type fixture struct {
	scheduler *Scheduler
	store     *fakeStore
	jobs      *fakeJobs
	retrier   *fakeRetrier
	locks     *kv.KV
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		store:   &fakeStore{},
		jobs:    &fakeJobs{},
		retrier: &fakeRetrier{},
		locks:   kv.New(client, "test"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.scheduler = New(f.store, f.jobs, f.retrier, f.locks, logger)
	return f
}

// # Tick

func TestTick_EnqueuesDueSyncsByTier(t *testing.T) {
	f := newFixture(t)
	f.store.due = []DueSource{
		{ID: "ss-hot", SyncPriority: "HOT"},
		{ID: "ss-warm", SyncPriority: "WARM"},
		{ID: "ss-cold", SyncPriority: "COLD"},
	}

	require.NoError(t, f.scheduler.Tick(context.Background()))

	syncs := f.jobs.ofKind(constants.JobSyncSource)
	require.Len(t, syncs, 3)
	assert.Equal(t, queue.SyncJobID("ss-hot"), syncs[0].ID)
	assert.Equal(t, constants.PriorityHot, syncs[0].Priority)
	assert.Equal(t, constants.PriorityWarm, syncs[1].Priority)
	assert.Equal(t, constants.PriorityCold, syncs[2].Priority)

	// Housekeeping subtasks all ran.
	assert.Equal(t, 1, f.retrier.dispatched)
	assert.Equal(t, 1, f.jobs.pruned)
}

func TestTick_BackfillsCovers(t *testing.T) {
	f := newFixture(t)
	f.store.covers = []string{"series-1", "series-2"}

	require.NoError(t, f.scheduler.Tick(context.Background()))

	covers := f.jobs.ofKind(constants.JobCoverRefresh)
	require.Len(t, covers, 2)
	assert.Equal(t, queue.CoverRefreshJobID("series-1"), covers[0].ID)
	assert.Equal(t, constants.PriorityLow, covers[0].Priority)
}

func TestTick_ContinuesPastFailingStep(t *testing.T) {
	f := newFixture(t)
	f.store.promoteErr = errors.New("deadlock detected")
	f.store.due = []DueSource{{ID: "ss-1", SyncPriority: "WARM"}}

	err := f.scheduler.Tick(context.Background())

	require.Error(t, err)
	// The failing priority step did not stop the sync enqueue.
	assert.Len(t, f.jobs.ofKind(constants.JobSyncSource), 1)
}

func TestTick_ReplayedTickDeduplicates(t *testing.T) {
	f := newFixture(t)
	f.store.due = []DueSource{{ID: "ss-1", SyncPriority: "HOT"}}

	require.NoError(t, f.scheduler.Tick(context.Background()))
	require.NoError(t, f.scheduler.Tick(context.Background()))

	assert.Len(t, f.jobs.ofKind(constants.JobSyncSource), 1)
}

// # Leader Lock

func TestTickOnce_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.store.due = []DueSource{{ID: "ss-1", SyncPriority: "HOT"}}

	err := f.locks.WithLock(context.Background(), constants.SchedulerLockName, constants.SchedulerLockTTL,
		func(ctx context.Context) error {
			// A second instance racing the same tick loses the lock and skips.
			f.scheduler.tickOnce(ctx)
			return nil
		})

	require.NoError(t, err)
	assert.Zero(t, f.store.claims)
	assert.Empty(t, f.jobs.jobs)
}

func TestTickOnce_RunsAfterLockReleased(t *testing.T) {
	f := newFixture(t)
	f.store.due = []DueSource{{ID: "ss-1", SyncPriority: "HOT"}}

	require.NoError(t, f.locks.WithLock(context.Background(), constants.SchedulerLockName, constants.SchedulerLockTTL,
		func(context.Context) error { return nil }))

	f.scheduler.tickOnce(context.Background())

	assert.Equal(t, 1, f.store.claims)
	assert.Len(t, f.jobs.ofKind(constants.JobSyncSource), 1)
}

// # Safety Thresholds

func TestEvaluateSafety(t *testing.T) {
	testCases := []struct {
		name       string
		stats      []queue.BandStats
		severities []string
	}{
		{
			name:  "calm_fleet",
			stats: []queue.BandStats{{Band: queue.BandDefault, Waiting: 10}},
		},
		{
			name:       "free_band_depth_critical",
			stats:      []queue.BandStats{{Band: queue.BandDefault, Waiting: constants.SafetyFreeQueueCritical + 1}},
			severities: []string{severityCritical},
		},
		{
			name: "free_band_age_critical",
			stats: []queue.BandStats{
				{Band: queue.BandDefault, Waiting: 5, OldestAge: constants.SafetyOldestJobCritical + time.Second},
			},
			severities: []string{severityCritical},
		},
		{
			name: "premium_band_depth_is_not_critical",
			stats: []queue.BandStats{
				{Band: queue.BandCritical, Waiting: constants.SafetyFreeQueueCritical + 1},
			},
		},
		{
			name: "fleet_total_warning",
			stats: []queue.BandStats{
				{Band: queue.BandCritical, Waiting: constants.SafetyTotalWaitingWarning},
				{Band: queue.BandLow, Waiting: 1},
			},
			severities: []string{severityWarning},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			alerts := evaluateSafety(testCase.stats)
			require.Len(t, alerts, len(testCase.severities))
			for i, severity := range testCase.severities {
				assert.Equal(t, severity, alerts[i].Severity)
			}
		})
	}
}
