// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"sync"

	"github.com/cosimlabs/cosim/pkg/substrate"
)

// defaultFrameBackpressure is the drop-oldest queue depth used when
// ServiceConfig.FrameBackpressure is unset, matching spec.md's
// FRAME_BACKPRESSURE default of 4.
const defaultFrameBackpressure = 4

// streamRelay fans a single substrate channel subscription out to this
// node's local subscribers, reference-counted so the node unsubscribes
// the moment the last local subscriber disconnects, per spec.md's
// "single substrate subscription per node" fan-out contract. It backs
// both the per-session frame stream and the per-session exec-result
// relay, keyed by the raw substrate channel name so the two never
// collide.
type streamRelay struct {
	channel string
	sub     substrate.Subscription
	cancel  context.CancelFunc

	mu          sync.Mutex
	subscribers map[chan string]struct{}
}

// JoinStream subscribes the caller to sessionID's frame stream, returning
// a channel of JSON-encoded Frame payloads and a leave function the
// caller must call exactly once when done.
func (s *Service) JoinStream(ctx context.Context, sessionID string) (chan string, func(), error) {
	return s.joinChannel(ctx, substrate.FramesChannel(sessionID))
}

// JoinExecResults subscribes the caller to sessionID's execution-result
// relay (exec:{session_id}), returning a channel of JSON-encoded
// ExecutionResult payloads and a leave function the caller must call
// exactly once when done.
func (s *Service) JoinExecResults(ctx context.Context, sessionID string) (chan string, func(), error) {
	return s.joinChannel(ctx, substrate.ExecChannel(sessionID))
}

func (s *Service) joinChannel(ctx context.Context, channel string) (chan string, func(), error) {
	s.mu.Lock()
	relay, exists := s.subs[channel]
	s.mu.Unlock()

	if !exists {
		relayCtx, cancel := context.WithCancel(context.Background())
		subscription, err := s.sub.Subscribe(relayCtx, channel)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		relay = &streamRelay{channel: channel, sub: subscription, cancel: cancel, subscribers: make(map[chan string]struct{})}

		s.mu.Lock()
		s.subs[channel] = relay
		s.mu.Unlock()

		go relay.pump()
	}

	ch := make(chan string, s.frameBackpressure())
	relay.mu.Lock()
	relay.subscribers[ch] = struct{}{}
	relay.mu.Unlock()

	leave := func() { s.leaveChannel(channel, ch) }
	return ch, leave, nil
}

func (s *Service) frameBackpressure() int {
	if s.cfg.FrameBackpressure > 0 {
		return s.cfg.FrameBackpressure
	}
	return defaultFrameBackpressure
}

func (r *streamRelay) pump() {
	for msg := range r.sub.Messages() {
		r.mu.Lock()
		for ch := range r.subscribers {
			enqueueDropOldest(ch, msg)
		}
		r.mu.Unlock()
	}
}

// enqueueDropOldest pushes msg onto ch, discarding the oldest buffered
// message first if ch is full, per spec.md §5's drop-oldest
// back-pressure policy: a slow subscriber loses its least-recent frames,
// never the most recent one, and the relay never blocks on a send.
func enqueueDropOldest(ch chan string, msg string) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

func (s *Service) leaveChannel(channel string, ch chan string) {
	s.mu.Lock()
	relay, exists := s.subs[channel]
	s.mu.Unlock()
	if !exists {
		return
	}

	relay.mu.Lock()
	delete(relay.subscribers, ch)
	empty := len(relay.subscribers) == 0
	relay.mu.Unlock()
	close(ch)

	if empty {
		s.mu.Lock()
		delete(s.subs, channel)
		s.mu.Unlock()
		relay.cancel()
		_ = relay.sub.Close()
	}
}
