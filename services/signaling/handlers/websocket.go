// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/services/signaling"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
}

func sendJSON(ws *websocket.Conn, v any) error {
	if err := ws.WriteJSON(v); err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
		return err
	}
	return nil
}

// Signal implements spec.md §6's single `WS /signaling` endpoint. The
// server upgrades, generates the connection's client_id server-side, and
// immediately sends `welcome {client_id}`. The client must then send a
// `join {room_id, role}` message before any other traffic; a join
// missing either field is rejected with an InvalidInput error event and
// the connection is closed, per spec.md §8. Once joined,
// offer/answer/ice-candidate envelopes addressed to target_client_id are
// routed for the connection's lifetime, until a `leave` message or
// disconnect.
func Signal(svc *signaling.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("upgrade signal websocket", "error", err)
			return
		}
		defer ws.Close()

		clientID, err := signaling.NewClientID()
		if err != nil {
			slog.Error("generate client id", "error", err)
			return
		}
		if sendJSON(ws, signaling.WelcomeEvent(clientID)) != nil {
			return
		}

		ctx := c.Request.Context()

		var env signaling.ClientEnvelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Type != "join" {
			_ = sendJSON(ws, signaling.ErrorEvent(cosimerr.New(cosimerr.InvalidInput, "expected join, got %q", env.Type)))
			return
		}

		joined, outCh, err := svc.Join(ctx, clientID, env.RoomID, env.Role)
		if err != nil {
			_ = sendJSON(ws, signaling.ErrorEvent(err))
			return
		}
		roomID := env.RoomID
		defer svc.Leave(ctx, roomID, clientID)

		if sendJSON(ws, joined) != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var next signaling.ClientEnvelope
				if err := ws.ReadJSON(&next); err != nil {
					return
				}
				if next.Type == "leave" {
					return
				}
				msg := signaling.Message{
					Kind: signaling.MessageKind(next.Type), FromClientID: clientID,
					TargetClientID: next.TargetClientID, Payload: next.Payload,
				}
				if err := svc.Route(ctx, msg); err != nil {
					_ = sendJSON(ws, signaling.ErrorEvent(err))
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case payload, ok := <-outCh:
				if !ok {
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}
}
