// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"sync"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

// localConn is a client currently connected to this node: its routing
// record plus the outbound channel its WebSocket writer drains.
type localConn struct {
	client Client
	outCh  chan []byte
}

// registry tracks every client and room this node is locally serving.
// Cross-node membership lives in the substrate; registry is purely the
// local delivery fan-out.
type registry struct {
	mu      sync.Mutex
	clients map[string]*localConn  // clientID -> conn
	rooms   map[string]map[string]struct{} // roomID -> set of clientID
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]*localConn), rooms: make(map[string]map[string]struct{})}
}

func (r *registry) add(conn *localConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[conn.client.ClientID] = conn
	room, ok := r.rooms[conn.client.RoomID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[conn.client.RoomID] = room
	}
	room[conn.client.ClientID] = struct{}{}
}

// remove deletes clientID from the local registry and reports whether the
// room it belonged to is now empty locally (callers use this together
// with the substrate's member set to decide if the room index entry
// should be dropped).
func (r *registry) remove(roomID, clientID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
	room, ok := r.rooms[roomID]
	if !ok {
		return true
	}
	delete(room, clientID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

func (r *registry) get(clientID string) (*localConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.clients[clientID]
	return conn, ok
}

func (r *registry) roomPeers(roomID, except string) []*localConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	peers := make([]*localConn, 0, len(room))
	for id := range room {
		if id == except {
			continue
		}
		if conn, ok := r.clients[id]; ok {
			peers = append(peers, conn)
		}
	}
	return peers
}

func (r *registry) counts() (connections, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients), len(r.rooms)
}

// loadParticipants reads every member of roomID's substrate set and
// returns their routing records, used to answer a joining client with the
// room's current participant list (which may include peers on other
// nodes).
func loadParticipants(ctx context.Context, sub substrate.Substrate, roomID string) ([]Client, error) {
	memberIDs, err := sub.SMembers(ctx, substrate.SignalingRoomMembersKey(roomID))
	if err != nil {
		return nil, err
	}
	participants := make([]Client, 0, len(memberIDs))
	for _, id := range memberIDs {
		fields, err := sub.HGetAll(ctx, substrate.SignalingClientKey(id))
		if err != nil || len(fields) == 0 {
			continue
		}
		participants = append(participants, Client{ClientID: id, RoomID: fields["room_id"], Role: fields["role"], HomeNodeID: fields["home_node_id"]})
	}
	return participants, nil
}
