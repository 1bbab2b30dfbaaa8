// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

func newTestSubstrate(t *testing.T) Substrate {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client)
}

func TestKVGetSetDel(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	_, err := sub.Get(ctx, "missing")
	require.Equal(t, cosimerr.NotFound, cosimerr.KindOf(err))

	require.NoError(t, sub.Set(ctx, "k", "v", 0))
	v, err := sub.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	require.NoError(t, sub.Del(ctx, "k"))
	_, err = sub.Get(ctx, "k")
	require.Equal(t, cosimerr.NotFound, cosimerr.KindOf(err))
}

func TestKVWithTTL(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	require.NoError(t, sub.Set(ctx, "k", "v", 50*time.Millisecond))
	v, err := sub.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestHash(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	require.NoError(t, sub.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	v, err := sub.HGet(ctx, "h", "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	all, err := sub.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, sub.HDel(ctx, "h", "a"))
	all, err = sub.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"b": "2"}, all)
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	require.NoError(t, sub.SAdd(ctx, "s", "a", "b", "c"))
	members, err := sub.SMembers(ctx, "s")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, members)

	card, err := sub.SCard(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, int64(3), card)

	require.NoError(t, sub.SRem(ctx, "s", "b"))
	members, err = sub.SMembers(ctx, "s")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "c"}, members)
}

func TestIncr(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	v, err := sub.Incr(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = sub.Incr(ctx, "counter", 5, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(6), v)
}

func TestSetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	ok, err := sub.SetNX(ctx, "lease:1", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sub.SetNX(ctx, "lease:1", "token-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second holder must not acquire an already-held lease")

	deleted, err := sub.CompareAndDelete(ctx, "lease:1", "token-b")
	require.NoError(t, err)
	require.False(t, deleted, "a non-owner token must not delete the lease")

	deleted, err = sub.CompareAndDelete(ctx, "lease:1", "token-a")
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := newTestSubstrate(t)

	subscription, err := sub.Subscribe(ctx, "chan-1")
	require.NoError(t, err)
	defer subscription.Close()

	require.NoError(t, sub.Publish(ctx, "chan-1", "hello"))

	select {
	case msg := <-subscription.Messages():
		require.Equal(t, "hello", msg)
	case <-ctx.Done():
		t.Fatal("timed out waiting for published message")
	}
}

func TestRegisterRoomMember(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubstrate(t)

	err := sub.RegisterRoomMember(ctx, SignalingRoomMembersKey("room-1"), "client-1", SignalingClientKey("client-1"), map[string]string{"room_id": "room-1", "role": "offerer"})
	require.NoError(t, err)

	members, err := sub.SMembers(ctx, SignalingRoomMembersKey("room-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"client-1"}, members)

	fields, err := sub.HGetAll(ctx, SignalingClientKey("client-1"))
	require.NoError(t, err)
	require.Equal(t, "room-1", fields["room_id"])
}
