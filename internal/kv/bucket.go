// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-worker/internal/platform/constants"
)

// bucketTTLSeconds is the sliding expiry on both bucket keys. A source that
// has not been scraped for an hour starts over with a full bucket.
const bucketTTLSeconds = 3600

// bucketScript is the whole token-bucket acquire as one atomic evaluation:
// refill by elapsed time, take a token if one is available, otherwise return
// how long the caller should wait for the next token.
//
// KEYS[1] = tokens (float), KEYS[2] = last_refill (unix ms)
// ARGV[1] = rps, ARGV[2] = burst, ARGV[3] = now unix ms, ARGV[4] = key ttl s
// Returns {acquired 0|1, wait_ms}
var bucketScript = redis.NewScript(`
local tokens = tonumber(redis.call('GET', KEYS[1]))
local last_refill = tonumber(redis.call('GET', KEYS[2]))
local rps = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

if tokens == nil then tokens = burst end
if last_refill == nil then last_refill = now_ms end

local elapsed_ms = now_ms - last_refill
if elapsed_ms < 0 then elapsed_ms = 0 end

tokens = tokens + (elapsed_ms / 1000.0) * rps
if tokens > burst then tokens = burst end

local acquired = 0
local wait_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    acquired = 1
else
    wait_ms = math.ceil(((1 - tokens) / rps) * 1000)
end

redis.call('SET', KEYS[1], tostring(tokens), 'EX', ARGV[4])
redis.call('SET', KEYS[2], tostring(now_ms), 'EX', ARGV[4])

return {acquired, wait_ms}
`)

// TokenResult is the outcome of one atomic bucket evaluation.
type TokenResult struct {
	// Acquired reports whether a token was taken.
	Acquired bool

	// Wait is the suggested delay before the next attempt. Zero when acquired.
	Wait time.Duration
}

// TakeToken runs one atomic refill-and-take against the named source bucket.
// It never sleeps; the rate limiter owns the waiting policy.
func (kv *KV) TakeToken(ctx context.Context, source string, rps float64, burst int) (TokenResult, error) {
	keys := []string{
		kv.Key(constants.KeyRateLimit, source, "tokens"),
		kv.Key(constants.KeyRateLimit, source, "last_refill"),
	}
	args := []any{rps, burst, time.Now().UnixMilli(), bucketTTLSeconds}

	values, err := bucketScript.Run(ctx, kv.client, keys, args...).Int64Slice()
	if err != nil {
		return TokenResult{}, fmt.Errorf("kv: token bucket %q failed: %w", source, err)
	}
	if len(values) != 2 {
		return TokenResult{}, fmt.Errorf("kv: token bucket %q returned %d values", source, len(values))
	}

	return TokenResult{
		Acquired: values[0] == 1,
		Wait:     time.Duration(values[1]) * time.Millisecond,
	}, nil
}
