// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ops

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/yomira-worker/internal/platform/respond"
)

// Checks holds the injectable dependency checkers for the /ready endpoint.
type Checks struct {
	// CheckDatabase pings the PostgreSQL pool.
	CheckDatabase func() error

	// CheckCache pings the Redis client.
	CheckCache func() error

	// CheckQueue verifies the task queue can absorb new work.
	CheckQueue func() error
}

type healthHandler struct {
	checks Checks
	logger *slog.Logger
}

// newHealthHandlers creates the /health and /ready http.HandlerFuncs.
func newHealthHandlers(checks Checks, logger *slog.Logger) (liveness, readiness http.HandlerFunc) {
	handler := &healthHandler{checks: checks, logger: logger}
	return handler.liveness, handler.readiness
}

// liveness handles GET /health (liveness probe).
func (handler *healthHandler) liveness(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, map[string]string{"status": "ok"})
}

// readiness handles GET /ready (readiness probe).
func (handler *healthHandler) readiness(writer http.ResponseWriter, request *http.Request) {
	type checkResult struct {
		Name  string `json:"name"`
		IsOK  bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	named := []struct {
		name  string
		check func() error
	}{
		{"postgres", handler.checks.CheckDatabase},
		{"redis", handler.checks.CheckCache},
		{"queue", handler.checks.CheckQueue},
	}

	results := make([]checkResult, 0, len(named))
	isSystemReady := true

	for _, dependency := range named {
		if dependency.check == nil {
			continue
		}
		result := checkResult{Name: dependency.name, IsOK: true}
		if err := dependency.check(); err != nil {
			result.IsOK = false
			result.Error = err.Error()
			isSystemReady = false
			handler.logger.Error("readiness_check_failed",
				slog.String("dependency", dependency.name),
				slog.Any("error", err),
			)
		}
		results = append(results, result)
	}

	status := "ready"
	if !isSystemReady {
		status = "degraded"
		respond.JSON(writer, http.StatusServiceUnavailable, respond.SuccessEnvelope{Data: map[string]any{
			"status": status,
			"checks": results,
		}})
		return
	}

	respond.OK(writer, map[string]any{
		"status": status,
		"checks": results,
	})
}
