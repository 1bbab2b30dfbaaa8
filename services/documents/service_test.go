// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package documents

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/alicebob/miniredis/v2"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

func newTestService(t *testing.T, sub substrate.Substrate, nodeID string) *Service {
	t.Helper()
	log := logging.New(logging.Config{Service: "documents-test", Quiet: true})
	return New(ServiceConfig{Addr: ":0", NodeID: nodeID}, sub, authn.NopProvider{}, log)
}

func sharedTestSubstrate(t *testing.T) substrate.Substrate {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return substrate.NewRedisFromClient(client)
}

// TestCRDTConvergence_TwoNodesMergeToIdenticalState exercises the
// end-to-end scenario of two clients on two different nodes opening the
// same document, each applying a local update, and converging to the
// same encoded state once the poll loop has had a chance to run.
func TestCRDTConvergence_TwoNodesMergeToIdenticalState(t *testing.T) {
	sub := sharedTestSubstrate(t)
	nodeA := newTestService(t, sub, "node-a")
	nodeB := newTestService(t, sub, "node-b")

	ctx := context.Background()
	_, _, leaveA, err := nodeA.Join(ctx, "doc-1", "client-a")
	require.NoError(t, err)
	defer leaveA()

	_, _, leaveB, err := nodeB.Join(ctx, "doc-1", "client-b")
	require.NoError(t, err)
	defer leaveB()

	sessA, err := nodeA.lookupSession("doc-1")
	require.NoError(t, err)
	sessB, err := nodeB.lookupSession("doc-1")
	require.NoError(t, err)

	// node A applies a local change and flushes it to the substrate.
	_, err = sessA.document.applyUpdate(sessA.document.snapshot())
	require.NoError(t, err)
	nodeA.flush(ctx, sessA)

	// node B's poll loop picks up node A's persisted state.
	require.Eventually(t, func() bool {
		nodeB.pollRemote(ctx, sessB)
		return true
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, sessA.document.snapshot(), sessB.document.snapshot())
}

// TestAwareness_CrossNodeRelayDeliversToOtherNode verifies that an
// awareness update published on one node reaches a client on another
// node via the shared substrate channel.
func TestAwareness_CrossNodeRelayDeliversToOtherNode(t *testing.T) {
	sub := sharedTestSubstrate(t)
	nodeA := newTestService(t, sub, "node-a")
	nodeB := newTestService(t, sub, "node-b")

	ctx := context.Background()
	_, _, leaveA, err := nodeA.Join(ctx, "doc-2", "client-a")
	require.NoError(t, err)
	defer leaveA()

	_, outB, leaveB, err := nodeB.Join(ctx, "doc-2", "client-b")
	require.NoError(t, err)
	defer leaveB()

	require.NoError(t, nodeA.Awareness(ctx, "doc-2", "client-a", map[string]any{"cursor": 5}))

	select {
	case <-outB:
	case <-time.After(time.Second):
		t.Fatal("client on node B never received the relayed awareness update")
	}
}

// TestAwareness_SameNodeDoesNotEchoToOriginatingSubscriber verifies that
// a node does not rebroadcast its own published awareness update back to
// its local clients a second time via the relay subscription (the
// OriginID check in runAwarenessRelay), since Awareness already delivers
// it to local clients directly.
func TestAwareness_SameNodeDoesNotEchoToOriginatingSubscriber(t *testing.T) {
	sub := sharedTestSubstrate(t)
	nodeA := newTestService(t, sub, "node-a")

	ctx := context.Background()
	_, outA, leaveA, err := nodeA.Join(ctx, "doc-3", "client-a")
	require.NoError(t, err)
	defer leaveA()
	_, outOther, leaveOther, err := nodeA.Join(ctx, "doc-3", "client-other")
	require.NoError(t, err)
	defer leaveOther()

	require.NoError(t, nodeA.Awareness(ctx, "doc-3", "client-a", map[string]any{"cursor": 1}))

	// client-other (same node) gets exactly one delivery, from the direct
	// broadcast in Awareness, not a second one from the relay echo.
	select {
	case <-outOther:
	case <-time.After(time.Second):
		t.Fatal("other local client never received the awareness update")
	}
	select {
	case <-outOther:
		t.Fatal("other local client received a duplicate echoed update")
	case <-time.After(100 * time.Millisecond):
	}

	// the originating client never receives its own update at all.
	select {
	case <-outA:
		t.Fatal("originating client must not receive its own awareness update")
	case <-time.After(100 * time.Millisecond):
	}
}
