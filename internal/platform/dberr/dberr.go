// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dberr provides a bridge between low-level database errors and the
worker's error taxonomy.

The classifier has three layers, checked in order:

 1. Structural: pgx sentinel values (no rows) and context deadlines.
 2. SQLSTATE: pgconn errors matched against pgerrcode classes.
 3. Substring: a last-resort message table for errors the driver surfaces
    as plain strings (pool timeouts, dropped connections).

Non-transient authentication patterns are checked BEFORE transient patterns.
An auth failure often arrives wrapped in connection noise, and retrying it
five times per job across a fleet is a retry storm against the database.
*/
package dberr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

var (
	// ErrNotFound is the standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// permanentPatterns are message substrings that must never be retried.
// Checked before transientPatterns; see the package comment.
var permanentPatterns = []string{
	"password authentication failed",
	"permission denied",
	"no pg_hba.conf entry",
	"ssl is not enabled",
}

// transientPatterns are message substrings that indicate a recoverable fault.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection pool timeout",
	"pool exhausted",
	"prepared statement",
	"can't reach database",
	"unexpected eof",
	"broken pipe",
	"server closed the connection",
	"timeout: context",
}

// # Classification

// Wrap inspects a database error and converts it into a classified
// [apperr.AppError]. The action string names the failed operation for logs.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// Already classified upstream; pass through untouched.
	if ae := apperr.As(err); ae != nil {
		return ae
	}

	// 1. Structural sentinels
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(action, err)
	}

	// 2. SQLSTATE classification
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr, err)
	}

	// 3. Message-substring fallback
	if IsTransient(err.Error()) {
		return apperr.TransientDB(err)
	}
	if isPermanentMessage(strings.ToLower(err.Error())) {
		return apperr.PermanentDB(err)
	}

	return apperr.Internal(err)
}

// classifySQLState maps a Postgres error code onto the taxonomy.
func classifySQLState(pgErr *pgconn.PgError, cause error) error {
	code := pgErr.Code

	switch {
	case code == pgerrcode.UniqueViolation:
		return apperr.Conflict(pgErr.ConstraintName + " violated")

	case code == pgerrcode.InvalidPassword,
		code == pgerrcode.InvalidAuthorizationSpecification,
		code == pgerrcode.InsufficientPrivilege,
		code == pgerrcode.InvalidCatalogName, // database does not exist
		code == pgerrcode.UndefinedTable,
		code == pgerrcode.UndefinedColumn:
		return apperr.PermanentDB(cause)

	case code == pgerrcode.QueryCanceled:
		// statement_timeout fired
		return apperr.Timeout("query", cause)

	case pgerrcode.IsConnectionException(code),
		code == pgerrcode.AdminShutdown,
		code == pgerrcode.CrashShutdown,
		code == pgerrcode.CannotConnectNow,
		code == pgerrcode.TooManyConnections,
		code == pgerrcode.SerializationFailure,
		code == pgerrcode.DeadlockDetected:
		return apperr.TransientDB(cause)
	}

	return apperr.Internal(cause)
}

// IsTransient reports whether a raw driver message describes a recoverable
// fault. Permanent (auth) patterns win over transient ones regardless of
// which substrings are present.
func IsTransient(message string) bool {
	lowered := strings.ToLower(message)

	if isPermanentMessage(lowered) {
		return false
	}
	return matchesAny(lowered, transientPatterns)
}

// isPermanentMessage matches the non-retryable message table. "does not
// exist" is permanent only for roles and databases; a missing prepared
// statement is a recoverable connection fault.
func isPermanentMessage(lowered string) bool {
	if matchesAny(lowered, permanentPatterns) {
		return true
	}
	if strings.Contains(lowered, "does not exist") {
		return strings.Contains(lowered, `role "`) || strings.Contains(lowered, `database "`)
	}
	return false
}

// IsConflict reports whether err is a uniqueness violation, either as a raw
// pgconn error or already classified.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return true
	}
	return apperr.KindOf(err) == apperr.KindConflict
}

func matchesAny(message string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
