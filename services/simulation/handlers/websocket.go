// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cosimlabs/cosim/services/simulation"
)

// upgrader follows the orchestrator's permissive-origin, large-buffer
// shape; frames can be sizable so the buffers are kept generous.
var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 20,
}

// statusEvent renders a send_control reply or an async status change as
// spec.md §6's `{type:"status", ...}` text event.
func statusEvent(state simulation.State) gin.H {
	return gin.H{
		"type": "status", "session_id": state.SessionID, "status": state.Status,
		"degraded": state.Degraded, "frame_index": state.FrameIndex, "sim_time": state.SimTime,
	}
}

func statusError(err error) gin.H {
	return gin.H{"type": "status", "error": err.Error()}
}

// execResultEvent renders an ExecutionResult as spec.md §6's
// `{type:"exec_result", ...}` text event.
func execResultEvent(result simulation.ExecutionResult) gin.H {
	return gin.H{
		"type": "exec_result", "session_id": result.SessionID, "status": result.Status,
		"reason": result.Reason, "stdout": result.Stdout, "stderr": result.Stderr,
	}
}

// Stream implements spec.md §6's single `WS /v1/simulations/{session_id}/
// stream` endpoint: the client sends text control commands
// (play|pause|reset|step|set_fps <n>), the server sends binary frames
// and text exec_result/status events for the connection's lifetime. An
// optional ?from_frame=N replays locally-cached frames before the live
// stream starts.
func Stream(svc *simulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("upgrade stream websocket", "error", err)
			return
		}
		defer ws.Close()

		var writeMu sync.Mutex
		writeBinary := func(data []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return ws.WriteMessage(websocket.BinaryMessage, data)
		}
		writeText := func(v any) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := ws.WriteJSON(v); err != nil {
				slog.Warn("failed to write websocket JSON", "error", err)
				return err
			}
			return nil
		}

		ctx := c.Request.Context()

		var fromFrame uint64
		if v := c.Query("from_frame"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				fromFrame = n
			}
		}
		if replay, err := svc.ReplayFrames(sessionID, fromFrame); err == nil {
			for _, raw := range replay {
				var frame simulation.Frame
				if json.Unmarshal(raw, &frame) == nil {
					if writeBinary(encodeBinaryFrame(frame)) != nil {
						return
					}
				}
			}
		}

		frames, leaveFrames, err := svc.JoinStream(ctx, sessionID)
		if err != nil {
			_ = writeText(statusError(err))
			return
		}
		defer leaveFrames()

		execResults, leaveExec, err := svc.JoinExecResults(ctx, sessionID)
		if err == nil {
			defer leaveExec()
		}

		stop := make(chan struct{})
		var once sync.Once
		closeStop := func() { once.Do(func() { close(stop) }) }
		defer closeStop()

		go func() {
			for {
				select {
				case <-stop:
					return
				case payload, ok := <-frames:
					if !ok {
						closeStop()
						return
					}
					var frame simulation.Frame
					if json.Unmarshal([]byte(payload), &frame) != nil {
						continue
					}
					if writeBinary(encodeBinaryFrame(frame)) != nil {
						closeStop()
						return
					}
				case payload, ok := <-execResults:
					if !ok {
						continue
					}
					var result simulation.ExecutionResult
					if json.Unmarshal([]byte(payload), &result) != nil {
						continue
					}
					if writeText(execResultEvent(result)) != nil {
						closeStop()
						return
					}
				}
			}
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}

			cmd, err := parseControlCommand(string(raw))
			if err != nil {
				_ = writeText(statusError(err))
				continue
			}

			reply := make(chan simulation.State, 1)
			ctl := simulation.Control{Kind: cmd.kind, FPS: cmd.fps, Reply: reply}
			if err := svc.SendControl(sessionID, ctl); err != nil {
				_ = writeText(statusError(err))
				continue
			}

			select {
			case state := <-reply:
				_ = writeText(statusEvent(state))
			case <-stop:
				return
			}
		}
	}
}
