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
	"github.com/cosimlabs/cosim/services/signaling"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)

	log := logging.New(logging.Config{Service: "signaling-handlers-test", Quiet: true})
	svc := signaling.New(signaling.ServiceConfig{Addr: ":0", NodeID: "test-node"}, sub, authn.NopProvider{}, log)
	RegisterRoutes(svc.Router(), svc)

	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv
}

// dialSignal connects to the generic /signaling endpoint, reads the
// server's welcome, joins roomID with role, and returns the connection
// along with the client_id the server assigned.
func dialSignal(t *testing.T, srv *httptest.Server, roomID, role string) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/signaling"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var welcome struct {
		Type     string `json:"type"`
		ClientID string `json:"client_id"`
	}
	require.NoError(t, ws.ReadJSON(&welcome))
	require.Equal(t, "welcome", welcome.Type)
	require.NotEmpty(t, welcome.ClientID)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join", "room_id": roomID, "role": role}))
	return ws, welcome.ClientID
}

func TestSignal_JoinReceivesParticipantList(t *testing.T) {
	srv := newTestServer(t)
	ws, clientID := dialSignal(t, srv, "room-1", "viewer")

	var joined struct {
		Type   string `json:"type"`
		Client struct {
			ClientID string `json:"client_id"`
		} `json:"client"`
	}
	require.NoError(t, ws.ReadJSON(&joined))
	require.Equal(t, "joined", joined.Type)
	require.Equal(t, clientID, joined.Client.ClientID)
}

func TestSignal_RoutesOfferBetweenLocalClients(t *testing.T) {
	srv := newTestServer(t)
	a, _ := dialSignal(t, srv, "room-2", "broadcaster")
	b, clientB := dialSignal(t, srv, "room-2", "viewer")

	var discard map[string]any
	require.NoError(t, a.ReadJSON(&discard))
	require.NoError(t, b.ReadJSON(&discard))

	offer := map[string]any{
		"type":             "offer",
		"target_client_id": clientB,
		"payload":          map[string]any{"sdp": "v=0"},
	}
	require.NoError(t, a.WriteJSON(offer))

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, b.ReadJSON(&got))
	require.Equal(t, "offer", got["type"])
}

func TestSignal_JoinMissingRoomIDRejected(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/signaling"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var welcome map[string]any
	require.NoError(t, ws.ReadJSON(&welcome))

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join", "role": "viewer"}))

	var errEvent map[string]any
	require.NoError(t, ws.ReadJSON(&errEvent))
	require.Equal(t, "error", errEvent["type"])
}
