// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// RunHeartbeat refreshes the fleet liveness key until the context is
// canceled. The search dispatcher reads this key before enqueueing external
// work; once the key goes stale, searches defer instead of piling onto a
// dead fleet.
func RunHeartbeat(ctx context.Context, store *kv.KV, logger *slog.Logger) {
	ticker := time.NewTicker(constants.HeartbeatInterval)
	defer ticker.Stop()

	pid := os.Getpid()
	beat := func() {
		beatCtx, cancel := context.WithTimeout(ctx, constants.HeartbeatInterval)
		defer cancel()
		if err := store.Beat(beatCtx, pid, "healthy"); err != nil {
			logger.Warn("worker_heartbeat_failed", slog.String("error", err.Error()))
		}
	}

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
