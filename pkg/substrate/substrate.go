// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package substrate implements the State Substrate: the single logical
// key/value + pub/sub instance every other component composes for shared
// state, leases, and cross-node fan-out.
//
// The interface is narrow on purpose: C2-C5 depend on Substrate, never on
// go-redis directly, so the backing store can be swapped (miniredis in
// tests, a future cluster client in production) without touching callers.
package substrate

import (
	"context"
	"time"
)

// Substrate is the durable, TTL-aware store and pub/sub bus shared by every
// node in the coordination plane.
type Substrate interface {
	// KV with TTL. A zero ttl means no expiration.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// Hash, used for per-client metadata and per-server heartbeats.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Set, used for room membership and the room index.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Incr atomically increments key by delta, setting ttl if the key is
	// newly created by this call. Used for rate-limit token buckets and
	// frame_index counters.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Expire sets or refreshes a key's TTL. Used by Lease.Renew to extend
	// the ownership lease.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SetNX sets key to value only if absent, returning true if the set
	// took effect. The basis of the ownership lease primitive in lease.go.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if its current value equals value,
	// so a lease holder never deletes a lease another holder re-acquired
	// after expiry. Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Publish/Subscribe. Subscribers receive every message published after
	// subscription; no replay, per-channel FIFO, no ordering across
	// channels.
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// RegisterRoomMember atomically adds setMember to the room's member set
	// and writes its routing hash, so a membership index and its
	// corresponding client record never tear under a concurrent read.
	RegisterRoomMember(ctx context.Context, roomKey, setMember, hashKey string, fields map[string]string) error

	Close() error
}

// Subscription is a live channel subscription. Callers range over Messages
// until the context passed to Subscribe is canceled, then call Close.
type Subscription interface {
	Messages() <-chan string
	Close() error
}
