// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// ErrLockNotAcquired is returned by [KV.WithLock] when another holder owns
// the lock. Callers fail fast; they never queue behind the holder.
var ErrLockNotAcquired = apperr.Conflict("lock already held")

// releaseScript deletes the lock key only when the stored value matches the
// holder's token. Without the compare, a holder whose TTL expired could
// release a lock that a second holder has since re-acquired.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// WithLock runs fn while holding the named distributed lock.
//
// # Semantics
//
//   - Acquisition is SET NX PX with a random holder token.
//   - Non-acquisition returns [ErrLockNotAcquired] immediately.
//   - The TTL bounds leader takeover if the holder crashes mid-fn.
//   - Release is best-effort: an expired lock is already gone, and that is
//     logged rather than surfaced, since fn has completed either way.
func (kv *KV) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	key := kv.Key(constants.KeyLock, name)
	holderToken := uuid.NewString()

	acquired, err := kv.client.SetNX(ctx, key, holderToken, ttl).Result()
	if err != nil {
		return fmt.Errorf("kv: lock %q acquire failed: %w", name, err)
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		// Release on a fresh context: fn may have consumed the deadline.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		released, releaseErr := releaseScript.Run(releaseCtx, kv.client, []string{key}, holderToken).Int()
		if releaseErr != nil {
			slog.Warn("kv_lock_release_failed", slog.String("lock", name), slog.Any("error", releaseErr))
		} else if released == 0 {
			slog.Warn("kv_lock_expired_before_release", slog.String("lock", name))
		}
	}()

	return fn(ctx)
}
