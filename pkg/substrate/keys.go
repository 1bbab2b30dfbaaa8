// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import "fmt"

// Key builders centralize the substrate's key namespace so every component
// agrees on layout without importing each other's packages. Mirrors the
// cosim:cache / cosim:lock / cosim:channel namespacing of
// original_source/CoSim/backend/src/co_sim/core/redis.py, generalized to
// the full key table.

func SimConfigKey(sessionID string) string { return fmt.Sprintf("sim:config:%s", sessionID) }
func SimStateKey(sessionID string) string  { return fmt.Sprintf("sim:state:%s", sessionID) }
func SimLeaseKey(sessionID string) string  { return fmt.Sprintf("sim:lease:%s", sessionID) }
func FramesChannel(sessionID string) string { return fmt.Sprintf("frames:%s", sessionID) }
func ExecChannel(sessionID string) string   { return fmt.Sprintf("exec:%s", sessionID) }

const SignalingRoomsKey = "signaling:rooms"

func SignalingRoomMembersKey(room string) string {
	return fmt.Sprintf("signaling:rooms:%s:members", room)
}

func SignalingClientKey(clientID string) string {
	return fmt.Sprintf("signaling:clients:%s", clientID)
}

const SignalingRelayChannel = "signaling:relay"

func SignalingServerKey(nodeID string) string { return fmt.Sprintf("signaling:servers:%s", nodeID) }

func DocStateKey(docID string) string   { return fmt.Sprintf("docs:%s", docID) }
func AwarenessChannel(docID string) string { return fmt.Sprintf("awareness:%s", docID) }

func RateLimitKey(subject, routeClass string) string {
	return fmt.Sprintf("rl:%s:%s", subject, routeClass)
}

func RevokedTokenKey(jti string) string { return fmt.Sprintf("revoked:%s", jti) }

func ResponseCacheKey(route, scopeKey string) string {
	return fmt.Sprintf("cache:%s:%s", route, scopeKey)
}

const SessionEventsChannel = "sessions:events"

func VerificationCodeKey(purpose, subject string) string {
	return fmt.Sprintf("verify:%s:%s", purpose, subject)
}
