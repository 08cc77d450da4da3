// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the sync worker.

It defines queue names, job priorities, sync intervals, Redis key fragments,
and operational thresholds that are shared between different layers of the
pipeline.

Categories:

  - Queues: Named queues and priority bands for the job system.
  - Scheduling: Sync intervals per priority tier and scheduler cadence.
  - Search: Heat, quota, cooldown, and deferral policy values.
  - Safety: Queue depth thresholds for the safety monitor.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "yomira-worker"
	AppVersion = "0.1.0-dev"
)

// # Job Kinds (queue names)

const (
	JobCheckSource             = "check-source"
	JobCanonicalize            = "canonicalize"
	JobChapterIngest           = "chapter-ingest"
	JobNotificationFanout      = "notification-fanout"
	JobNotificationDelivery    = "notification-delivery"
	JobNotificationDeliveryVIP = "notification-delivery-premium"
	JobSyncSource              = "sync-source"
	JobCoverRefresh            = "cover-refresh"
)

// # Job Priorities
//
// Lower value means sooner. These are logical priorities; the queue layer
// maps them onto its physical priority bands.

const (
	PriorityCritical = 0  // premium search, premium delivery
	PriorityHot      = 1  // HOT tier sync
	PriorityWarm     = 2  // WARM tier sync
	PriorityCold     = 3  // COLD tier sync
	PriorityStandard = 5  // standard-tier search
	PriorityLow      = 10 // deferred retries, housekeeping
)

// # Sync Scheduling

const (
	// SchedulerTickInterval is the cadence of the master scheduler loop.
	SchedulerTickInterval = 5 * time.Minute

	// SchedulerLockName is the distributed lock guarding the master tick.
	SchedulerLockName = "scheduler:master"

	// SchedulerLockTTL bounds leader takeover time if a scheduler crashes.
	SchedulerLockTTL = 60 * time.Second

	// SyncIntervalHot is the refresh interval for HOT series sources.
	SyncIntervalHot = 15 * time.Minute

	// SyncIntervalWarm is the refresh interval for WARM series sources.
	SyncIntervalWarm = 4 * time.Hour

	// SyncIntervalCold is the refresh interval for COLD series sources.
	SyncIntervalCold = 24 * time.Hour

	// SyncBatchSize is the maximum number of due sources enqueued per tick.
	SyncBatchSize = 500

	// HotReaderThreshold is the follower count above which a source is
	// promoted to HOT by priority maintenance.
	HotReaderThreshold = 100

	// DemoteHotAfter demotes HOT sources that have not succeeded recently.
	DemoteHotAfter = 24 * time.Hour

	// DemoteWarmAfter demotes WARM sources that have not succeeded recently.
	DemoteWarmAfter = 7 * 24 * time.Hour
)

// # Job Retry Policy

const (
	// MaxJobAttempts caps queue retries for transient failures.
	MaxJobAttempts = 5

	// RetryBaseDelay is the first backoff step (doubled per attempt, jittered).
	RetryBaseDelay = 30 * time.Second

	// RetryMaxDelay caps the exponential backoff curve.
	RetryMaxDelay = 15 * time.Minute

	// DeadLetterRetention is how long failed-out jobs are kept for inspection.
	DeadLetterRetention = 24 * time.Hour
)

// # Ingestion

const (
	// IngestBatchSize is the number of chapters committed per transaction.
	IngestBatchSize = 50

	// IngestTxTimeout bounds each ingestion transaction.
	IngestTxTimeout = 30 * time.Second

	// DeliveryChunkSize is the number of users per notification-delivery job.
	DeliveryChunkSize = 500
)

// # Outbound Calls

const (
	// ScrapeTimeout bounds every outbound call to an external source.
	ScrapeTimeout = 30 * time.Second

	// RateLimitMaxWait is the deadline for acquiring a source token.
	RateLimitMaxWait = 30 * time.Second

	// BreakerOpenDuration is how long a tripped circuit stays open.
	BreakerOpenDuration = 60 * time.Second

	// BreakerFailureThreshold trips the circuit after this many consecutive failures.
	BreakerFailureThreshold = 5
)

// # Search Dispatch

const (
	// SearchCacheTTLRich is the cache TTL for result sets with >= 5 hits.
	SearchCacheTTLRich = 1 * time.Hour

	// SearchCacheTTLSparse is the cache TTL for thin result sets.
	SearchCacheTTLSparse = 5 * time.Minute

	// SearchRichResultCount is the local-result count above which external
	// enrichment is skipped and the rich cache TTL applies.
	SearchRichResultCount = 5

	// SearchPendingWait is how long a coalesced request waits for the
	// in-flight twin to publish its result.
	SearchPendingWait = 3 * time.Second

	// SearchHeatWindow is the sliding window for query heat accounting.
	SearchHeatWindow = 15 * time.Minute

	// SearchHeatMinCount marks a query HOT at this many sightings.
	SearchHeatMinCount = 2

	// SearchHeatMinUsers marks a query HOT at this many distinct users.
	SearchHeatMinUsers = 2

	// SearchCooldownTTL suppresses repeat external dispatch per IP + query.
	SearchCooldownTTL = 30 * time.Second

	// PremiumDailyQuota is the number of heat-bypass searches per premium
	// user per UTC day.
	PremiumDailyQuota = 50

	// PremiumMaxConcurrent caps in-flight external searches per premium user.
	PremiumMaxConcurrent = 2

	// DeferredSearchTTL is how long a deferred search entry survives.
	DeferredSearchTTL = 7 * 24 * time.Hour

	// DeferredSearchMaxRetries drops a deferred entry after this many cycles.
	DeferredSearchMaxRetries = 5

	// DeferredSearchPerTick is how many deferred hashes each tick retries.
	DeferredSearchPerTick = 10
)

// # Worker Heartbeat

const (
	// HeartbeatInterval is how often a worker refreshes its liveness key.
	HeartbeatInterval = 5 * time.Second

	// HeartbeatTTL is the Redis expiry on the heartbeat key.
	HeartbeatTTL = 10 * time.Second

	// HeartbeatMaxAge is the staleness ceiling for "workers online".
	HeartbeatMaxAge = 15 * time.Second
)

// # Safety Monitor

const (
	// SafetyFreeQueueCritical is the free-delivery waiting count that logs CRITICAL.
	SafetyFreeQueueCritical = 10_000

	// SafetyOldestJobCritical is the free-delivery oldest-job age that logs CRITICAL.
	SafetyOldestJobCritical = 5 * time.Minute

	// SafetyTotalWaitingWarning is the fleet-wide waiting count that logs WARNING.
	SafetyTotalWaitingWarning = 50_000

	// QueueHealthyMaxWaiting is the waiting ceiling for a queue to be
	// considered healthy by the search dispatcher.
	QueueHealthyMaxWaiting = 10_000

	// QueuePingTimeout is the KV responsiveness ceiling for queue health.
	QueuePingTimeout = 5 * time.Second
)

// # Redis Key Fragments (joined under app:<env>: by internal/kv)

const (
	KeyLock               = "lock"
	KeyRateLimit          = "ratelimit"
	KeyWorkersHeartbeat   = "workers:heartbeat"
	KeySearchCooldown     = "cooldown:search"
	KeySearchPending      = "search:pending"
	KeySearchCache        = "search:cache"
	KeySearchHeat         = "search:heat"
	KeySearchDeferred     = "search:deferred"
	KeyPremiumQuota       = "premium:quota"
	KeyPremiumConcurrency = "premium:concurrency"
)

// # Ops Server Timing

const (
	DefaultReadTimeout       = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultReadHeaderTimeout = 2 * time.Second
	ShutdownTimeout          = 30 * time.Second

	// GlobalStatementTimeout is the per-connection Postgres statement ceiling.
	GlobalStatementTimeout = 30 * time.Second
)

// # Ops Rate Limiting

const (
	DefaultRateLimitRPS      = 50.0
	DefaultRateLimitBurst    = 100
	RateLimitCleanupInterval = 1 * time.Minute
	RateLimitClientTTL       = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaCore    = "core"
	SchemaCrawler = "crawler"
	SchemaLibrary = "library"
	SchemaNotify  = "notify"
	SchemaUsers   = "users"
)
