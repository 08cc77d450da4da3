// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// newTestQueue builds the facade over an in-memory Redis.
func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	server := miniredis.RunT(t)
	q := New(asynq.RedisClientOpt{Addr: server.Addr()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestBandFor(t *testing.T) {
	testCases := []struct {
		name     string
		priority int
		band     string
	}{
		{"critical", constants.PriorityCritical, BandCritical},
		{"hot", constants.PriorityHot, BandHigh},
		{"warm", constants.PriorityWarm, BandDefault},
		{"cold", constants.PriorityCold, BandDefault},
		{"standard", constants.PriorityStandard, BandDefault},
		{"low", constants.PriorityLow, BandLow},
		{"below_critical", -1, BandCritical},
		{"above_low", 99, BandLow},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.band, BandFor(testCase.priority))
		})
	}
}

func TestBandWeights_CoverAllBands(t *testing.T) {
	for _, band := range Bands {
		assert.Greater(t, BandWeights[band], 0, band)
	}
}

/*
TestRetryDelay verifies the backoff curve doubles from the base, stays under
the cap plus jitter, and never goes negative on absurd attempt counts.
*/
func TestRetryDelay(t *testing.T) {
	for attempt := 0; attempt < 64; attempt++ {
		delay := RetryDelay(attempt, nil, nil)

		expectedBase := constants.RetryBaseDelay << attempt
		if expectedBase > constants.RetryMaxDelay || expectedBase <= 0 {
			expectedBase = constants.RetryMaxDelay
		}

		assert.GreaterOrEqual(t, delay, expectedBase, "attempt %d", attempt)
		maxWithJitter := expectedBase + expectedBase/5
		assert.LessOrEqual(t, delay, maxWithJitter, "attempt %d", attempt)
	}
}

func TestJobIDs(t *testing.T) {
	assert.Equal(t, "sync-abc", SyncJobID("abc"))
	assert.Equal(t, "search_deadbeef", SearchJobID("deadbeef"))
	assert.Equal(t, "canon_mangadex_42", CanonicalizeJobID("mangadex", "42"))

	// Deterministic: the same inputs always produce the same dedup key.
	assert.Equal(t, SyncJobID("abc"), SyncJobID("abc"))
}

/*
TestStats_MissingBandsReportZero verifies introspection on a fresh broker:
bands nothing was ever enqueued to do not exist yet, and the inspector's
queue-not-found answer must read as an empty band, not an error.
*/
func TestStats_MissingBandsReportZero(t *testing.T) {
	q := newTestQueue(t)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)

	require.Len(t, stats, len(Bands))
	for i, band := range Bands {
		assert.Equal(t, band, stats[i].Band)
		assert.Zero(t, stats[i].Waiting, band)
		assert.Zero(t, stats[i].Active, band)
	}
}

// PruneDeadLetters walks the same not-yet-created bands; nothing to delete
// is a clean zero.
func TestPruneDeadLetters_MissingBands(t *testing.T) {
	q := newTestQueue(t)

	pruned, err := q.PruneDeadLetters(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestRetryDelay_JitterDecorrelates(t *testing.T) {
	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		seen[RetryDelay(0, nil, nil)] = true
	}
	// 50 draws over a 6-second jitter range should not all collide.
	assert.Greater(t, len(seen), 1)
}
