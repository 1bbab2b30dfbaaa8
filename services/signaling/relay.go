// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"encoding/json"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

// internalTargetMissing is a relay-only kind: it never appears on the
// client-facing wire protocol, only inside a relayEnvelope bounced back
// to the origin node when a non-silent message's target has vanished.
const internalTargetMissing MessageKind = "_target_missing"

// runRelay subscribes to the single cross-node routing channel for the
// lifetime of ctx, delivering every envelope addressed to this node and
// dropping or bouncing the rest per spec.md's routing contract.
func (s *Service) runRelay(ctx context.Context) error {
	sub, err := s.sub.Subscribe(ctx, substrate.SignalingRelayChannel)
	if err != nil {
		return err
	}
	s.relaySub = sub

	go func() {
		for payload := range sub.Messages() {
			s.handleRelayMessage(ctx, payload)
		}
	}()
	return nil
}

func (s *Service) handleRelayMessage(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.log.Warn("decode relay envelope", "error", err)
		return
	}
	if env.TargetNodeID != s.nodeID {
		return
	}

	if env.Kind == internalTargetMissing {
		targetClientID, _ := env.Payload["target_client_id"].(string)
		s.deliverError(env.TargetClientID, targetClientID)
		return
	}

	conn, ok := s.registry.get(env.TargetClientID)
	if !ok {
		if !env.Kind.silent() {
			s.metrics.RelayBounces.Inc()
			s.bounceTargetMissing(ctx, env)
		}
		return
	}
	s.deliverLocal(conn.client.ClientID, Message{Kind: env.Kind, FromClientID: env.FromClientID, TargetClientID: env.TargetClientID, Payload: env.Payload})
}

func (s *Service) bounceTargetMissing(ctx context.Context, env relayEnvelope) {
	notice := relayEnvelope{
		OriginNodeID: s.nodeID, TargetNodeID: env.OriginNodeID, TargetClientID: env.FromClientID,
		FromClientID: env.TargetClientID, Kind: internalTargetMissing,
		Payload: map[string]any{"target_client_id": env.TargetClientID},
	}
	raw, err := json.Marshal(notice)
	if err != nil {
		return
	}
	if err := s.sub.Publish(ctx, substrate.SignalingRelayChannel, string(raw)); err != nil {
		s.log.Warn("publish target-missing bounce", "error", err)
	}
}

// deliverLocal writes msg to clientID's outbound channel if still
// connected to this node. When the channel is full msg itself is dropped,
// unlike the frame fan-out, which drops the oldest buffered frame.
func (s *Service) deliverLocal(clientID string, msg Message) {
	conn, ok := s.registry.get(clientID)
	if !ok {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("marshal signaling message", "error", err)
		return
	}
	select {
	case conn.outCh <- raw:
	default:
	}
}

// deliverError writes a `{type:"error", ...}` event to clientID's
// outbound channel, used when a relay bounce reports the client's own
// earlier message couldn't reach targetClientID.
func (s *Service) deliverError(clientID, targetClientID string) {
	conn, ok := s.registry.get(clientID)
	if !ok {
		return
	}
	raw, err := json.Marshal(errorEvent{Type: string(MessageError), Error: "target client not found", TargetClientID: targetClientID})
	if err != nil {
		return
	}
	select {
	case conn.outCh <- raw:
	default:
	}
}
