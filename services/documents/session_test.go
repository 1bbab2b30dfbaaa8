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

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/require"
)

func newTestDocSession(id string) *docSession {
	_, cancel := context.WithCancel(context.Background())
	return newDocSession(id, &document{id: id, doc: automerge.New()}, cancel)
}

func TestDocSession_AddAndRemoveClient(t *testing.T) {
	sess := newTestDocSession("doc-1")
	sess.addClient("a")

	empty := sess.removeClient("a")
	require.True(t, empty, "removing the only client must report the session empty")
}

func TestDocSession_RemoveClientNotEmptyUntilLast(t *testing.T) {
	sess := newTestDocSession("doc-1")
	sess.addClient("a")
	sess.addClient("b")

	require.False(t, sess.removeClient("a"))
	require.True(t, sess.removeClient("b"))
}

func TestDocSession_BroadcastExcludesSender(t *testing.T) {
	sess := newTestDocSession("doc-1")
	a := sess.addClient("a")
	b := sess.addClient("b")

	sess.broadcast([]byte("payload"), "a")

	select {
	case <-a:
		t.Fatal("sender must not receive its own broadcast")
	default:
	}

	select {
	case got := <-b:
		require.Equal(t, []byte("payload"), got)
	default:
		t.Fatal("other client must receive the broadcast")
	}
}

func TestDocSession_BroadcastDropsWhenFull(t *testing.T) {
	sess := newTestDocSession("doc-1")
	ch := sess.addClient("a")

	for i := 0; i < cap(ch)+8; i++ {
		sess.broadcast([]byte("payload"), "")
	}
	require.Len(t, ch, cap(ch), "broadcast must drop rather than block once the client channel is full")
}
