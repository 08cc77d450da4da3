// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics declares the Prometheus collectors exported on /metrics.

Collectors are package-level and auto-registered so instrumentation points
never need wiring; the ops server only has to mount the promhttp handler.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yomira"

// Task outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRetry    = "retry"
	OutcomeRejected = "rejected"
)

var (
	// JobsProcessed counts finished queue tasks per kind and outcome.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Finished queue tasks by kind and outcome.",
	}, []string{"kind", "outcome"})

	// JobDuration observes handler wall time per task kind.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Handler wall time by task kind.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	// ScrapeFailures counts classified scrape failures per source.
	ScrapeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scraper",
		Name:      "scrape_failures_total",
		Help:      "Classified scrape failures by source and error kind.",
	}, []string{"source", "kind"})

	// ChaptersIngested counts genuinely new logical chapters.
	ChaptersIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "chapters_ingested_total",
		Help:      "Logical chapters created by ingestion.",
	})

	// NotificationsCreated counts freshly inserted notifications.
	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "notifications_created_total",
		Help:      "Notifications inserted by delivery jobs.",
	})

	// QueueWaiting gauges the waiting depth per priority band. The safety
	// monitor refreshes it each scheduler tick.
	QueueWaiting = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "waiting_jobs",
		Help:      "Waiting tasks per priority band.",
	}, []string{"band"})

	// SearchDispatches counts dispatcher outcomes per gate decision.
	SearchDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "dispatch_decisions_total",
		Help:      "Search dispatcher decisions by outcome.",
	}, []string{"outcome"})
)

// ObserveJob records one finished task.
func ObserveJob(kind, outcome string, elapsed time.Duration) {
	JobsProcessed.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
