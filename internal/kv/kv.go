// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package kv provides the atomic key-value primitives shared by the worker
fleet: named locks, distributed token buckets, and liveness heartbeats.

All state lives in Redis under the `app:<env>:` namespace. Nothing in this
package keeps in-process state between calls, which is what allows any number
of worker processes to share one rate budget and one scheduler leadership.

Primitives:

  - Lock: SET NX PX acquisition with compare-and-delete release.
  - Bucket: one Lua script that refills, takes a token, or returns a wait hint.
  - Heartbeat: short-TTL liveness keys with a staleness reader.
*/
package kv

import (
	"strings"

	"github.com/redis/go-redis/v9"
)

// KV wraps the shared Redis client with the application key namespace.
type KV struct {
	client redis.UniversalClient
	prefix string
}

// New constructs a namespaced KV facade for the given environment
// ("development", "production", ...).
func New(client redis.UniversalClient, environment string) *KV {
	return &KV{
		client: client,
		prefix: "app:" + environment + ":",
	}
}

// Client exposes the underlying Redis client for domain stores that need
// direct command access (search heat, pending sets). They must still build
// keys through [KV.Key].
func (kv *KV) Client() redis.UniversalClient { return kv.client }

// Key joins parts under the `app:<env>:` namespace.
//
// Example:
//
//	kv.Key("ratelimit", "mangadex", "tokens") // "app:production:ratelimit:mangadex:tokens"
func (kv *KV) Key(parts ...string) string {
	return kv.prefix + strings.Join(parts, ":")
}
