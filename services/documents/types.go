// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package documents implements the CRDT Document Service (C4): shared
// document sessions backed by automerge, persisted with a coalesced
// write-behind, plus an origin-tagged awareness relay.
package documents

import "time"

const (
	// flushInterval bounds how long a local CRDT update may sit before
	// the document's full encoded state is re-persisted.
	flushInterval = 50 * time.Millisecond

	// pollInterval is how often an open document session re-reads its
	// persisted state to merge in writes made by other nodes; the
	// substrate holds no live cross-node update channel for documents
	// (only docs:{doc_id} and awareness:{doc_id}), so convergence across
	// nodes is pull-based.
	pollInterval = 200 * time.Millisecond
)

// UpdateMessage carries one CRDT update from or to a client: the full
// encoded state of the sender's local document. Automerge's merge
// operator is commutative and idempotent, so sending the whole encoded
// document on every change is correct, if more bandwidth-heavy than a
// true incremental sync protocol (see DESIGN.md).
type UpdateMessage struct {
	Type string `json:"type"` // "update" | "snapshot"
	Data []byte `json:"data"`
}

// AwarenessMessage carries a client's ephemeral presence payload
// (cursor, selection, user metadata), tagged with the node that
// generated it so a relay subscriber can recognize and discard its own
// echo.
type AwarenessMessage struct {
	ClientID string         `json:"client_id"`
	OriginID string         `json:"origin_id"`
	Presence map[string]any `json:"presence"`
}
