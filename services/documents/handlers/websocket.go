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
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cosimlabs/cosim/services/documents"
)

// docID joins a workspace_id and path into the flat key the document
// service sessions are keyed by, per spec.md §3's Document attribute
// "keyed by (workspace_id, path)".
func docID(workspaceID, path string) string {
	return workspaceID + ":" + strings.TrimPrefix(path, "/")
}

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

// clientMessage is an inbound frame from a document session's WebSocket.
// Kind distinguishes an "update" (full encoded CRDT state) from an
// "awareness" (ephemeral presence) frame; only the matching field is set.
type clientMessage struct {
	Kind     string         `json:"kind"`
	Data     []byte         `json:"data,omitempty"`
	Presence map[string]any `json:"presence,omitempty"`
}

// Session upgrades to a WebSocket, joins the caller into doc_id's
// document session, sends the current snapshot, and then relays CRDT
// updates and awareness frames for the connection's lifetime. Query
// parameter client_id is required.
func Session(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := docID(c.Param("workspace_id"), c.Param("path"))
		clientID := c.Query("client_id")
		if clientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("upgrade document session websocket", "error", err)
			return
		}
		defer ws.Close()

		ctx := c.Request.Context()
		snapshot, outCh, leave, err := svc.Join(ctx, id, clientID)
		if err != nil {
			_ = sendJSON(ws, gin.H{"error": err.Error()})
			return
		}
		defer leave()

		if sendJSON(ws, documents.UpdateMessage{Type: "snapshot", Data: snapshot}) != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var msg clientMessage
				if err := ws.ReadJSON(&msg); err != nil {
					return
				}
				switch msg.Kind {
				case "update":
					if err := svc.ApplyUpdate(ctx, id, clientID, msg.Data); err != nil {
						_ = sendJSON(ws, gin.H{"error": err.Error()})
					}
				case "awareness":
					if err := svc.Awareness(ctx, id, clientID, msg.Presence); err != nil {
						_ = sendJSON(ws, gin.H{"error": err.Error()})
					}
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
