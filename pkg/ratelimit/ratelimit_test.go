// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestLimiter(t *testing.T, classes []Class) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)
	return New(sub, classes)
}

func TestAllowUnderLimit(t *testing.T) {
	limiter := newTestLimiter(t, []Class{{Name: "read", Limit: 10, Window: time.Minute, Burst: 10}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Allow(ctx, "user-1", "read"))
	}
}

func TestRejectOverLimit(t *testing.T) {
	limiter := newTestLimiter(t, []Class{{Name: "write", Limit: 3, Window: time.Minute, Burst: 10}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, "user-1", "write"))
	}
	err := limiter.Allow(ctx, "user-1", "write")
	require.Equal(t, cosimerr.TooManyRequests, cosimerr.KindOf(err))
}

func TestLimitsArePerSubject(t *testing.T) {
	limiter := newTestLimiter(t, []Class{{Name: "write", Limit: 1, Window: time.Minute, Burst: 10}})
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "user-1", "write"))
	require.NoError(t, limiter.Allow(ctx, "user-2", "write"))
}

func TestUnconfiguredClassIsUnlimited(t *testing.T) {
	limiter := newTestLimiter(t, nil)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Allow(ctx, "user-1", "unknown"))
	}
}
