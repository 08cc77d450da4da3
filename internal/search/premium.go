// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"time"

	"github.com/taibuivan/yomira-worker/internal/kv"
	"github.com/taibuivan/yomira-worker/internal/platform/constants"
	"github.com/taibuivan/yomira-worker/internal/platform/dberr"
)

// premiumGate enforces the per-user heat-bypass quota and the in-flight
// concurrency cap for premium accounts.
type premiumGate struct {
	store *kv.KV
	now   func() time.Time
}

/*
ConsumeQuota burns one unit of the user's daily heat-bypass budget.

Description: The key carries the UTC date, so the budget resets at
midnight without bookkeeping. The increment and the check are one
operation: an over-quota increment still sticks, which is harmless because
every later check sees an even larger count.

Returns:
  - bool: Whether the user was still under quota for today.
*/
func (gate *premiumGate) ConsumeQuota(ctx context.Context, userID string) (bool, error) {
	day := gate.now().UTC().Format("2006-01-02")
	key := gate.store.Key(constants.KeyPremiumQuota, userID, day)

	client := gate.store.Client()
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return false, dberr.Wrap(err, "consume premium quota")
	}
	if count == 1 {
		// 48h instead of 24h so a key created at 23:59 still covers its day.
		if err := client.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			return false, dberr.Wrap(err, "expire premium quota key")
		}
	}

	return count <= constants.PremiumDailyQuota, nil
}

/*
AcquireSlot claims one in-flight external-search slot for a premium user.

Returns:
  - bool: false when the user is already at the concurrency cap.
*/
func (gate *premiumGate) AcquireSlot(ctx context.Context, userID string) (bool, error) {
	key := gate.store.Key(constants.KeyPremiumConcurrency, userID)
	client := gate.store.Client()

	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return false, dberr.Wrap(err, "acquire premium slot")
	}

	// The TTL self-heals leaked slots from crashed workers.
	if err := client.Expire(ctx, key, 2*constants.ScrapeTimeout).Err(); err != nil {
		return false, dberr.Wrap(err, "expire premium slot key")
	}

	if count > constants.PremiumMaxConcurrent {
		if err := client.Decr(ctx, key).Err(); err != nil {
			return false, dberr.Wrap(err, "release over-cap premium slot")
		}
		return false, nil
	}
	return true, nil
}

// ReleaseSlot returns a previously acquired slot.
func (gate *premiumGate) ReleaseSlot(ctx context.Context, userID string) error {
	key := gate.store.Key(constants.KeyPremiumConcurrency, userID)
	count, err := gate.store.Client().Decr(ctx, key).Result()
	if err != nil {
		return dberr.Wrap(err, "release premium slot")
	}
	if count < 0 {
		// A TTL expiry beat the release; clamp rather than go negative.
		return dberr.Wrap(gate.store.Client().Del(ctx, key).Err(), "reset premium slot key")
	}
	return nil
}
