// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
	"github.com/cosimlabs/cosim/services/documents"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)

	log := logging.New(logging.Config{Service: "documents-handlers-test", Quiet: true})
	svc := documents.New(documents.ServiceConfig{Addr: ":0", NodeID: "test-node"}, sub, authn.NopProvider{}, log)
	RegisterRoutes(svc.Router(), svc)

	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv
}

func dialSession(t *testing.T, srv *httptest.Server, workspaceID, path, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/documents/" + workspaceID + "/" + path + "?client_id=" + clientID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestSession_JoinReceivesSnapshot(t *testing.T) {
	srv := newTestServer(t)
	ws := dialSession(t, srv, "ws-1", "scenes/main.sdf", "client-a")

	var msg documents.UpdateMessage
	require.NoError(t, ws.ReadJSON(&msg))
	require.Equal(t, "snapshot", msg.Type)
}

func TestSession_UpdateBroadcastToOtherLocalClient(t *testing.T) {
	srv := newTestServer(t)
	a := dialSession(t, srv, "ws-2", "scenes/main.sdf", "client-a")
	b := dialSession(t, srv, "ws-2", "scenes/main.sdf", "client-b")

	var snapshot documents.UpdateMessage
	require.NoError(t, a.ReadJSON(&snapshot))
	require.NoError(t, b.ReadJSON(&snapshot))

	require.NoError(t, a.WriteJSON(map[string]any{"kind": "update", "data": snapshot.Data}))

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update documents.UpdateMessage
	require.NoError(t, b.ReadJSON(&update))
	require.Equal(t, "update", update.Type)
}

func TestSession_MissingClientIDRejected(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/documents/ws-3/scenes/main.sdf"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 400, resp.StatusCode)
}
