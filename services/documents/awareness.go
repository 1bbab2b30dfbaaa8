// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package documents

import (
	"context"
	"encoding/json"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

// runAwarenessRelay subscribes to doc_id's awareness channel for the
// lifetime of ctx, delivering inbound presence updates to local clients
// while discarding updates this node itself published, per the
// origin-marker echo-avoidance scheme.
func (s *Service) runAwarenessRelay(ctx context.Context, sess *docSession) error {
	sub, err := s.sub.Subscribe(ctx, substrate.AwarenessChannel(sess.id))
	if err != nil {
		return err
	}
	sess.awarenessSub = sub

	go func() {
		for payload := range sub.Messages() {
			var msg AwarenessMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				continue
			}
			if msg.OriginID == s.nodeID {
				continue
			}
			sess.broadcast(encodeAwarenessEvent(msg), "")
		}
	}()
	return nil
}

// Awareness publishes a client's presence update, excluding it from the
// relay echo by tagging it with this node's ID, and fans it out to this
// node's other local clients immediately (it does not wait for the
// relay round-trip, since the sender's own node already knows it).
func (s *Service) Awareness(ctx context.Context, docID, clientID string, presence map[string]any) error {
	sess, err := s.lookupSession(docID)
	if err != nil {
		return err
	}

	msg := AwarenessMessage{ClientID: clientID, OriginID: s.nodeID, Presence: presence}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.sub.Publish(ctx, substrate.AwarenessChannel(docID), string(raw)); err != nil {
		s.log.Warn("publish awareness update", "doc_id", docID, "error", err)
	}

	sess.broadcast(encodeAwarenessEvent(msg), clientID)
	return nil
}

func encodeAwarenessEvent(msg AwarenessMessage) []byte {
	raw, _ := json.Marshal(map[string]any{"type": "awareness", "client_id": msg.ClientID, "presence": msg.Presence})
	return raw
}
