// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestPair(t *testing.T) (sub substrate.Substrate) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return substrate.NewRedisFromClient(client)
}

func newTestServiceOn(t *testing.T, sub substrate.Substrate, nodeID string) *Service {
	t.Helper()
	log := logging.New(logging.Config{Service: "signaling-test", Quiet: true})
	svc := New(ServiceConfig{Addr: ":0", NodeID: nodeID}, sub, authn.NopProvider{}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, svc.runRelay(ctx))
	return svc
}

func TestService_JoinReturnsExistingParticipants(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")

	_, _, err := svc.Join(context.Background(), "alice", "room-1", "caller")
	require.NoError(t, err)

	joined, _, err := svc.Join(context.Background(), "bob", "room-1", "callee")
	require.NoError(t, err)
	require.Len(t, joined.Participants, 2)
}

func TestService_JoinMissingRoomIDOrRoleIsInvalidInput(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")
	ctx := context.Background()

	_, _, err := svc.Join(ctx, "alice", "", "caller")
	require.Error(t, err)

	_, _, err = svc.Join(ctx, "alice", "room-1", "")
	require.Error(t, err)
}

func TestService_RouteLocalDelivery(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")
	ctx := context.Background()

	_, aliceCh, err := svc.Join(ctx, "alice", "room-1", "caller")
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, "bob", "room-1", "callee")
	require.NoError(t, err)

	require.NoError(t, svc.Route(ctx, Message{Kind: MessageOffer, FromClientID: "bob", TargetClientID: "alice", Payload: map[string]any{"sdp": "x"}}))

	select {
	case <-aliceCh:
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the routed offer")
	}
}

func TestService_RouteAcrossNodesViaRelay(t *testing.T) {
	sub := newTestPair(t)
	nodeA := newTestServiceOn(t, sub, "node-a")
	nodeB := newTestServiceOn(t, sub, "node-b")
	ctx := context.Background()

	_, _, err := nodeA.Join(ctx, "alice", "room-1", "caller")
	require.NoError(t, err)
	_, bobCh, err := nodeB.Join(ctx, "bob", "room-1", "callee")
	require.NoError(t, err)

	require.NoError(t, nodeA.Route(ctx, Message{Kind: MessageAnswer, FromClientID: "alice", TargetClientID: "bob", Payload: map[string]any{"sdp": "y"}}))

	select {
	case <-bobCh:
	case <-time.After(2 * time.Second):
		t.Fatal("bob did not receive the relayed answer")
	}
}

func TestService_RouteMissingTargetNonSilent(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")
	err := svc.Route(context.Background(), Message{Kind: MessageOffer, FromClientID: "alice", TargetClientID: "ghost"})
	require.Error(t, err)
}

func TestService_RouteMissingTargetSilentForICE(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")
	err := svc.Route(context.Background(), Message{Kind: MessageICECandidate, FromClientID: "alice", TargetClientID: "ghost"})
	require.NoError(t, err)
}

func TestService_LeaveRemovesFromRoomIndexWhenEmpty(t *testing.T) {
	sub := newTestPair(t)
	svc := newTestServiceOn(t, sub, "node-a")
	ctx := context.Background()

	_, _, err := svc.Join(ctx, "alice", "room-1", "caller")
	require.NoError(t, err)

	svc.Leave(ctx, "room-1", "alice")

	members, err := sub.SMembers(ctx, substrate.SignalingRoomMembersKey("room-1"))
	require.NoError(t, err)
	require.Empty(t, members)

	rooms, err := sub.SMembers(ctx, substrate.SignalingRoomsKey)
	require.NoError(t, err)
	require.NotContains(t, rooms, "room-1")
}
