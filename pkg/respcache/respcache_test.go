// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package respcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(substrate.NewRedisFromClient(client), ttl)
}

func TestGetOrFillFillsOnMiss(t *testing.T) {
	cache := newTestCache(t, time.Second)
	var calls int32
	body, err := cache.GetOrFill(context.Background(), "/sessions", "user-1", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "payload", nil
	})
	require.NoError(t, err)
	require.Equal(t, "payload", body)
	require.Equal(t, int32(1), calls)
}

func TestGetOrFillServesCachedValue(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	var calls int32
	fill := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "payload", nil
	}

	_, err := cache.GetOrFill(context.Background(), "/sessions", "user-1", fill)
	require.NoError(t, err)
	_, err = cache.GetOrFill(context.Background(), "/sessions", "user-1", fill)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls, "second call must be served from cache, not refill")
}

func TestTTLIsCappedAtMax(t *testing.T) {
	cache := New(nil, time.Hour)
	require.Equal(t, MaxTTL, cache.ttl)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	var calls int32
	fill := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "payload", nil
	}

	_, err := cache.GetOrFill(context.Background(), "/sessions", "user-1", fill)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), "/sessions", "user-1"))

	_, err = cache.GetOrFill(context.Background(), "/sessions", "user-1", fill)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls, "invalidated entry must refill")
}
