// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for the
Yomira sync worker.

It provides a rich error type that bridges the gap between low-level
scraper/storage errors and the queue retry policy.

Architecture:

  - AppError: A struct carrying a machine-readable Kind and a log-safe message.
  - Retryability: Each Kind maps to exactly one retry decision, so the queue
    layer matches on kind, never on message substrings.
  - Mapping: Explicit mapping from AppError to HTTP status codes for the
    small ops surface.

Every error that leaves a service layer should be wrapped as an [AppError] so
the pipeline's failure policy stays uniform.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Taxonomy

// Kind is a machine-readable error classification. The queue retry policy and
// the circuit breaker both dispatch on it.
type Kind string

const (
	// KindInvalidInput marks caller errors (bad source ID format, rejected URL).
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindNotFound marks missing entities (series source row, series).
	KindNotFound Kind = "NOT_FOUND"

	// KindUnauthorized marks rejected credentials against an upstream API.
	KindUnauthorized Kind = "UNAUTHORIZED"

	// KindRateLimited marks a 429 or an exhausted local token budget.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindCircuitOpen marks a short-circuited call to a tripped source.
	KindCircuitOpen Kind = "CIRCUIT_OPEN"

	// KindTimeout marks deadline-exceeded on outbound or database calls.
	KindTimeout Kind = "TIMEOUT"

	// KindUpstreamBlocked marks WAF/proxy rejections (403 and friends).
	KindUpstreamBlocked Kind = "UPSTREAM_BLOCKED"

	// KindUpstreamSchemaChanged marks selector-not-found on a scraped page.
	KindUpstreamSchemaChanged Kind = "UPSTREAM_SCHEMA_CHANGED"

	// KindTransientDB marks recoverable database failures (pool timeout,
	// connection refused, broken prepared statements).
	KindTransientDB Kind = "TRANSIENT_DB"

	// KindPermanentDB marks database failures no retry can fix (bad
	// credentials, missing database or role).
	KindPermanentDB Kind = "PERMANENT_DB"

	// KindConflict marks uniqueness violations outside a natural dedup key.
	KindConflict Kind = "CONFLICT"

	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "INTERNAL"
)

// retryableKinds is the closed set of kinds the queue may retry.
// CircuitOpen is deliberately absent: retrying before the breaker's open
// window elapses just burns attempts.
var retryableKinds = map[Kind]bool{
	KindRateLimited:     true,
	KindTimeout:         true,
	KindTransientDB:     true,
	KindUpstreamBlocked: true,
}

// # Error Type

// AppError is the canonical error type for the sync worker.
//
// The Cause field is for server-side logging only and is never rendered on
// the ops surface, to avoid leaking internal details (e.g. SQL queries).
type AppError struct {
	// Kind is the machine-readable classification.
	Kind Kind
	// Message is a human-readable description safe to log and surface.
	Message string
	// Cause is the underlying error, used for logging and errors.Is chains.
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Retryable reports whether the queue should reschedule the failing job.
func (e *AppError) Retryable() bool { return retryableKinds[e.Kind] }

// # Constructors

// InvalidInput creates a non-retryable caller error.
func InvalidInput(msg string) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: msg}
}

// NotFound creates a non-retryable missing-entity error for a named resource.
//
// Example:
//
//	apperr.NotFound("SeriesSource") // "SeriesSource not found"
func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: resource + " not found"}
}

// Unauthorized creates a non-retryable upstream credential error.
func Unauthorized(msg string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: msg}
}

// RateLimited creates a retryable back-pressure error.
func RateLimited(msg string) *AppError {
	return &AppError{Kind: KindRateLimited, Message: msg}
}

// CircuitOpen creates a non-retryable short-circuit error for a source.
func CircuitOpen(source string) *AppError {
	return &AppError{Kind: KindCircuitOpen, Message: "circuit open for source " + source}
}

// Timeout creates a retryable deadline error for an operation.
func Timeout(operation string, cause error) *AppError {
	return &AppError{Kind: KindTimeout, Message: operation + " timed out", Cause: cause}
}

// UpstreamBlocked creates a retryable WAF/proxy rejection error.
func UpstreamBlocked(msg string, cause error) *AppError {
	return &AppError{Kind: KindUpstreamBlocked, Message: msg, Cause: cause}
}

// UpstreamSchemaChanged creates a non-retryable selector-not-found error.
func UpstreamSchemaChanged(msg string) *AppError {
	return &AppError{Kind: KindUpstreamSchemaChanged, Message: msg}
}

// TransientDB creates a retryable database error.
func TransientDB(cause error) *AppError {
	return &AppError{Kind: KindTransientDB, Message: "transient database failure", Cause: cause}
}

// PermanentDB creates a non-retryable database error.
func PermanentDB(cause error) *AppError {
	return &AppError{Kind: KindPermanentDB, Message: "permanent database failure", Cause: cause}
}

// Conflict creates a non-retryable uniqueness-violation error.
func Conflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg}
}

// Internal creates a non-retryable fallback error wrapping an unexpected cause.
func Internal(cause error) *AppError {
	return &AppError{Kind: KindInternal, Message: "an unexpected error occurred", Cause: cause}
}

// # Helpers

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// KindOf classifies any error. Unwrapped errors are KindInternal;
// context deadline errors would already be wrapped by the call site.
func KindOf(err error) Kind {
	if ae := As(err); ae != nil {
		return ae.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err should be rescheduled by the queue.
// Unclassified errors are not retried: an unknown failure replayed five
// times is worse than one inspectable dead-letter entry.
func IsRetryable(err error) bool {
	if ae := As(err); ae != nil {
		return ae.Retryable()
	}
	return false
}

// HTTPStatus maps an error to a status code for the ops surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	case KindTimeout, KindTransientDB, KindCircuitOpen, KindUpstreamBlocked:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
