// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package workers contains the queue task handlers.

Every handler is idempotent: payloads identify work by natural keys, the
stores underneath are upsert-based, and job IDs deduplicate enqueues, so any
task can be retried or replayed without double effects. Handlers return
classified [apperr.AppError] values; the serve middleware maps non-retryable
kinds onto the queue engine's skip-retry signal.

The pipeline the handlers form:

	check-source -> canonicalize -> sync-source -> notification-fanout
	                                            -> notification-delivery

plus the standalone chapter-ingest and cover-refresh kinds.
*/
package workers

import (
	"context"
	"log/slog"

	"github.com/taibuivan/yomira-worker/internal/catalog"
	"github.com/taibuivan/yomira-worker/internal/ingest"
	"github.com/taibuivan/yomira-worker/internal/library"
	"github.com/taibuivan/yomira-worker/internal/notify"
	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/queue"
	"github.com/taibuivan/yomira-worker/internal/scraper"
	"github.com/taibuivan/yomira-worker/internal/search"
)

// # Collaborator Contracts

// Enqueuer is the slice of the queue facade handlers need to chain work.
type Enqueuer interface {
	Add(ctx context.Context, job queue.Job) (bool, error)
	AddBulk(ctx context.Context, jobs []queue.Job) (int, error)
}

// TokenSource grants outbound rate-limit tokens per external source.
type TokenSource interface {
	// Acquire blocks up to the rate-limit wait budget.
	//
	// Returns:
	//   - bool: false when the budget elapsed without a token.
	Acquire(ctx context.Context, source string) (bool, error)
}

// Scrapers resolves source names to their adapters.
type Scrapers interface {
	Get(source string) (scraper.Scraper, error)
	Sources() []string
}

// SearchResults is the slice of the search dispatcher the check-source
// worker needs: publishing result sets and returning premium slots.
type SearchResults interface {
	PublishResults(ctx context.Context, queryHash string, hits []search.Hit) error
	ReleasePremiumSlot(ctx context.Context, userID string) error
}

// # Workers

// Workers bundles every task handler over its collaborators.
type Workers struct {
	ingest   *ingest.Service
	catalog  *catalog.Service
	library  library.Store
	notify   notify.Store
	scrapers Scrapers
	limiter  TokenSource
	queue    Enqueuer
	results  SearchResults
	logger   *slog.Logger
}

// New wires the handler set.
func New(
	ingestService *ingest.Service,
	catalogService *catalog.Service,
	libraryStore library.Store,
	notifyStore notify.Store,
	scrapers Scrapers,
	limiter TokenSource,
	enqueuer Enqueuer,
	results SearchResults,
	logger *slog.Logger,
) *Workers {
	return &Workers{
		ingest:   ingestService,
		catalog:  catalogService,
		library:  libraryStore,
		notify:   notifyStore,
		scrapers: scrapers,
		limiter:  limiter,
		queue:    enqueuer,
		results:  results,
		logger:   logger,
	}
}

// acquireToken blocks for an outbound token and surfaces exhaustion as a
// retryable rate-limit error so the queue backs the task off.
func (workers *Workers) acquireToken(ctx context.Context, source string) error {
	acquired, err := workers.limiter.Acquire(ctx, source)
	if err != nil {
		return err
	}
	if !acquired {
		return apperr.RateLimited("token budget for " + source + " exhausted")
	}
	return nil
}
