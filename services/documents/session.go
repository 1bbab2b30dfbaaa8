// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package documents

import (
	"context"
	"sync"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

// docSession is one document's local presence on this node: the shared
// in-memory CRDT value, the node's subscribers, and the background
// flush/poll loops that keep it converging with other nodes.
type docSession struct {
	id       string
	document *document
	cancel   context.CancelFunc

	awarenessSub substrate.Subscription

	mu      sync.Mutex
	clients map[string]chan []byte
}

func newDocSession(id string, doc *document, cancel context.CancelFunc) *docSession {
	return &docSession{id: id, document: doc, cancel: cancel, clients: make(map[string]chan []byte)}
}

func (sess *docSession) addClient(clientID string) chan []byte {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	ch := make(chan []byte, 32)
	sess.clients[clientID] = ch
	return ch
}

// removeClient drops clientID and reports whether the session is now
// empty on this node.
func (sess *docSession) removeClient(clientID string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if ch, ok := sess.clients[clientID]; ok {
		close(ch)
		delete(sess.clients, clientID)
	}
	return len(sess.clients) == 0
}

// broadcast fans payload out to every local client except exceptClientID
// (pass "" to include everyone), with drop-on-full backpressure.
func (sess *docSession) broadcast(payload []byte, exceptClientID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for clientID, ch := range sess.clients {
		if clientID == exceptClientID {
			continue
		}
		select {
		case ch <- payload:
		default:
		}
	}
}
