// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

/*
TestRetryability pins the kind → retry decision table the queue relies on.
*/
func TestRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *apperr.AppError
		retryable bool
	}{
		{"rate_limited", apperr.RateLimited("token budget exhausted"), true},
		{"timeout", apperr.Timeout("scrape", errors.New("deadline")), true},
		{"transient_db", apperr.TransientDB(errors.New("pool timeout")), true},
		{"upstream_blocked", apperr.UpstreamBlocked("403 from WAF", nil), true},
		{"circuit_open", apperr.CircuitOpen("mangadex"), false},
		{"invalid_input", apperr.InvalidInput("bad source id"), false},
		{"not_found", apperr.NotFound("SeriesSource"), false},
		{"schema_changed", apperr.UpstreamSchemaChanged("selector .chapter-list missing"), false},
		{"permanent_db", apperr.PermanentDB(errors.New("auth failed")), false},
		{"conflict", apperr.Conflict("duplicate source binding"), false},
		{"internal", apperr.Internal(errors.New("boom")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.Retryable())
			assert.Equal(t, tt.retryable, apperr.IsRetryable(tt.err))
		})
	}
}

/*
TestIsRetryable_UnclassifiedErrors verifies plain errors never retry.
*/
func TestIsRetryable_UnclassifiedErrors(t *testing.T) {
	assert.False(t, apperr.IsRetryable(errors.New("mystery failure")))
	assert.False(t, apperr.IsRetryable(nil))
}

/*
TestKindOf_WrappedChain verifies classification survives fmt.Errorf wrapping.
*/
func TestKindOf_WrappedChain(t *testing.T) {
	base := apperr.RateLimited("upstream 429")
	wrapped := fmt.Errorf("check-source failed: %w", base)

	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(wrapped))
	assert.True(t, apperr.IsRetryable(wrapped))

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Equal(t, "upstream 429", ae.Message)
}

/*
TestHTTPStatus spot-checks the ops-surface status mapping.
*/
func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.InvalidInput("x")))
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(apperr.NotFound("Series")))
	assert.Equal(t, http.StatusTooManyRequests, apperr.HTTPStatus(apperr.RateLimited("x")))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(apperr.TransientDB(nil)))
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(apperr.Conflict("x")))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("raw")))
}

/*
TestUnwrap verifies errors.Is traversal through the cause chain.
*/
func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.TransientDB(cause)

	assert.True(t, errors.Is(err, cause))
}
