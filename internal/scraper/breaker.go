// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sony/gobreaker"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// breakerNeutralKinds are failures that never count against the circuit:
// back-pressure is the rate limiter's signal, and caller mistakes say
// nothing about source health.
var breakerNeutralKinds = map[apperr.Kind]bool{
	apperr.KindRateLimited:  true,
	apperr.KindInvalidInput: true,
	apperr.KindNotFound:     true,
}

// Guarded decorates a [Scraper] with a per-source circuit breaker.
//
// # State machine
//
//   - closed: calls pass through; 5 consecutive counted failures open it.
//   - open: calls fail immediately with CircuitOpen for 60 seconds.
//   - half-open: exactly one probe is admitted; success closes, failure
//     re-opens.
type Guarded struct {
	inner   Scraper
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps a scraper in its own circuit breaker.
func WithBreaker(inner Scraper, logger *slog.Logger) *Guarded {
	settings := gobreaker.Settings{
		Name: inner.Name(),

		// One probe per half-open window.
		MaxRequests: 1,

		// How long the circuit stays open before probing.
		Timeout: constants.BreakerOpenDuration,

		// Never reset the consecutive-failure streak on an interval; only
		// a success closes the streak.
		Interval: 0,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= constants.BreakerFailureThreshold
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return breakerNeutralKinds[apperr.KindOf(err)]
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("scraper_breaker_state_changed",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Guarded{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name implements [Scraper].
func (g *Guarded) Name() string { return g.inner.Name() }

// ScrapeSeries implements [Scraper] behind the breaker.
func (g *Guarded) ScrapeSeries(ctx context.Context, sourceID string) (*ScrapedSeries, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.ScrapeSeries(ctx, sourceID)
	})
	if err != nil {
		return nil, g.mapBreakerError(err)
	}
	return result.(*ScrapedSeries), nil
}

// SearchSeries implements [Scraper] behind the breaker.
func (g *Guarded) SearchSeries(ctx context.Context, query string) ([]SearchHit, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.SearchSeries(ctx, query)
	})
	if err != nil {
		return nil, g.mapBreakerError(err)
	}
	return result.([]SearchHit), nil
}

// mapBreakerError converts gobreaker sentinels into the taxonomy; other
// errors pass through already classified.
func (g *Guarded) mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.CircuitOpen(g.inner.Name())
	}
	return err
}
