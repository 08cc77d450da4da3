// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

/*
TestIsTransient pins the substring classifier, including the rule that
authentication failures are permanent even when connection noise is present.
*/
func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		transient bool
	}{
		{"auth_failed", "password authentication failed for user X", false},
		{"permission_denied", "permission denied for table core.series", false},
		{"missing_role", `role "worker" does not exist`, false},
		{"missing_database", `database "yomira" does not exist`, false},
		{"pool_timeout", "connection pool timeout", true},
		{"connection_refused", "dial tcp 10.0.0.5:5432: connection refused", true},
		{"prepared_statement_lost", `prepared statement "stmt_1" does not exist`, true},
		{"cant_reach", "can't reach database server", true},
		{"unrelated", "syntax error at or near SELECT", false},
		{"auth_wins_over_transient", "connection refused: password authentication failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, dberr.IsTransient(tt.message))
		})
	}
}

/*
TestWrap_Sentinels covers the structural layer: no-rows and deadlines.
*/
func TestWrap_Sentinels(t *testing.T) {
	assert.NoError(t, dberr.Wrap(nil, "noop"))

	err := dberr.Wrap(pgx.ErrNoRows, "find series source")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = dberr.Wrap(context.DeadlineExceeded, "ingest batch")
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.True(t, apperr.IsRetryable(err))
}

/*
TestWrap_SQLState covers the pgerrcode layer.
*/
func TestWrap_SQLState(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantKind  apperr.Kind
		retryable bool
	}{
		{"unique_violation", pgerrcode.UniqueViolation, apperr.KindConflict, false},
		{"invalid_password", pgerrcode.InvalidPassword, apperr.KindPermanentDB, false},
		{"invalid_catalog", pgerrcode.InvalidCatalogName, apperr.KindPermanentDB, false},
		{"connection_failure", pgerrcode.ConnectionFailure, apperr.KindTransientDB, true},
		{"too_many_connections", pgerrcode.TooManyConnections, apperr.KindTransientDB, true},
		{"deadlock", pgerrcode.DeadlockDetected, apperr.KindTransientDB, true},
		{"query_canceled", pgerrcode.QueryCanceled, apperr.KindTimeout, true},
		{"syntax_error", pgerrcode.SyntaxError, apperr.KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, ConstraintName: "uq_test"}
			wrapped := dberr.Wrap(pgErr, "test op")

			assert.Equal(t, tt.wantKind, apperr.KindOf(wrapped))
			assert.Equal(t, tt.retryable, apperr.IsRetryable(wrapped))
		})
	}
}

/*
TestWrap_Passthrough verifies pre-classified errors are not re-wrapped.
*/
func TestWrap_Passthrough(t *testing.T) {
	original := apperr.RateLimited("upstream")
	wrapped := dberr.Wrap(original, "ignored")

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Same(t, original, ae)
}

/*
TestIsConflict checks both raw pgconn and classified forms.
*/
func TestIsConflict(t *testing.T) {
	raw := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	assert.True(t, dberr.IsConflict(raw))
	assert.True(t, dberr.IsConflict(apperr.Conflict("dup")))
	assert.False(t, dberr.IsConflict(errors.New("other")))
}
