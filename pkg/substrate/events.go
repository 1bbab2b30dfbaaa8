// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import (
	"context"
	"encoding/json"
	"time"
)

// SessionEvent is one lifecycle notification published to
// SessionEventsChannel: simulation session create/delete, signaling room
// join/leave, document session join/leave. cosimctl watch is its sole
// intended consumer; components publish best-effort and never block on
// delivery.
type SessionEvent struct {
	Component string    `json:"component"` // "simulation" | "signaling" | "documents"
	Kind      string    `json:"kind"`      // e.g. "created", "deleted", "joined", "left"
	ID        string    `json:"id"`        // session/room/document ID
	NodeID    string    `json:"node_id"`
	At        time.Time `json:"at"`
}

// PublishSessionEvent publishes evt to SessionEventsChannel. Failures are
// returned for the caller to log-and-continue; a missed event notice
// never blocks or fails the operation it describes.
func PublishSessionEvent(ctx context.Context, sub Substrate, evt SessionEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return sub.Publish(ctx, SessionEventsChannel, string(raw))
}
