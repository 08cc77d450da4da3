// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// Heartbeat is the liveness record a worker publishes every few seconds.
type Heartbeat struct {
	// Timestamp is the publication time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// PID identifies the publishing process.
	PID int `json:"pid"`
	// Health is a free-form status string ("ok", "draining").
	Health string `json:"health"`
}

// Beat publishes the worker heartbeat with a short TTL. The key expiring is
// itself the offline signal, so failure to refresh needs no cleanup path.
func (kv *KV) Beat(ctx context.Context, pid int, health string) error {
	payload, err := json.Marshal(Heartbeat{
		Timestamp: time.Now().UnixMilli(),
		PID:       pid,
		Health:    health,
	})
	if err != nil {
		return fmt.Errorf("kv: heartbeat marshal failed: %w", err)
	}

	key := kv.Key(constants.KeyWorkersHeartbeat)
	if err := kv.client.Set(ctx, key, payload, constants.HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("kv: heartbeat write failed: %w", err)
	}
	return nil
}

// AreWorkersOnline reports whether at least one worker has beaten recently.
// Online means the key exists AND its timestamp is fresher than the
// staleness ceiling; an existing-but-stale value (clock skew, paused fleet)
// counts as offline.
func (kv *KV) AreWorkersOnline(ctx context.Context) (bool, error) {
	raw, err := kv.client.Get(ctx, kv.Key(constants.KeyWorkersHeartbeat)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: heartbeat read failed: %w", err)
	}

	var beat Heartbeat
	if err := json.Unmarshal(raw, &beat); err != nil {
		return false, nil
	}

	age := time.Since(time.UnixMilli(beat.Timestamp))
	return age < constants.HeartbeatMaxAge, nil
}
