// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// ServiceConfig configures the signaling service.
type ServiceConfig struct {
	Addr         string
	OTelEndpoint string
	NodeID       string

	// HeartbeatInterval is spec.md §6's HEARTBEAT_INTERVAL_MS; 0 falls
	// back to defaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

func (cfg ServiceConfig) heartbeatInterval() time.Duration {
	if cfg.HeartbeatInterval <= 0 {
		return defaultHeartbeatInterval
	}
	return cfg.HeartbeatInterval
}

// Service implements the Signaling Relay (C3): room membership, local
// fan-out, and cross-node message routing via the substrate relay
// channel.
type Service struct {
	cfg  ServiceConfig
	sub  substrate.Substrate
	auth authn.Provider
	log  *logging.Logger

	nodeID   string
	registry *registry
	relaySub substrate.Subscription
	metrics  *Metrics

	router *gin.Engine
}

func New(cfg ServiceConfig, sub substrate.Substrate, auth authn.Provider, log *logging.Logger) *Service {
	s := &Service{cfg: cfg, sub: sub, auth: auth, log: log, nodeID: cfg.NodeID, registry: newRegistry(), metrics: NewMetrics()}
	s.initRouter()
	return s
}

func (s *Service) Router() *gin.Engine { return s.router }

// Metrics exposes the service's private Prometheus registry for the
// /metrics handler.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Run starts the relay subscription and heartbeat loop, then serves HTTP.
func (s *Service) Run() error {
	ctx := context.Background()
	if err := s.runRelay(ctx); err != nil {
		return err
	}
	go s.runHeartbeat(ctx)

	s.log.Info("starting signaling service", "addr", s.cfg.Addr, "node_id", s.nodeID)
	return s.router.Run(s.cfg.Addr)
}

// initRouter builds the gin engine and middleware chain; route
// registration happens in the caller (cmd/signaling/main.go), which
// imports both this package and services/signaling/handlers so neither
// package needs to depend on the other.
func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("signaling-service"))
	s.router.Use(authn.Middleware(s.auth))
}

func (s *Service) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishHeartbeat(ctx)
		}
	}
}

func (s *Service) publishHeartbeat(ctx context.Context) {
	connections, rooms := s.registry.counts()
	hb := heartbeat{Connections: connections, Rooms: rooms, UpdatedAt: time.Now()}
	encoded, err := json.Marshal(hb)
	if err != nil {
		return
	}
	key := substrate.SignalingServerKey(s.nodeID)
	if err := s.sub.Set(ctx, key, string(encoded), heartbeatTTLMultiple*s.cfg.heartbeatInterval()); err != nil {
		s.log.Warn("publish server heartbeat", "error", err)
	}
}

// NewClientID generates a client_id server-side, per spec.md's Data
// Model §3 ("client_id generated at connect"): a caller never supplies
// its own identity, closing off the spoofing hole a caller-chosen ID
// would open.
func NewClientID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Join registers clientID as a member of roomID on this node, publishes
// its routing record to the substrate, notifies local room peers, and
// returns the room's current participant list. roomID and role must both
// be non-empty; spec.md §8's "Join with missing roomId or role →
// InvalidInput" boundary case.
func (s *Service) Join(ctx context.Context, clientID, roomID, role string) (joinResult, chan []byte, error) {
	if roomID == "" || role == "" {
		return joinResult{}, nil, cosimerr.New(cosimerr.InvalidInput, "join requires both room_id and role")
	}

	client := Client{ClientID: clientID, RoomID: roomID, Role: role, HomeNodeID: s.nodeID}
	fields := map[string]string{"room_id": roomID, "role": role, "home_node_id": s.nodeID}

	if err := s.sub.RegisterRoomMember(ctx, substrate.SignalingRoomMembersKey(roomID), clientID, substrate.SignalingClientKey(clientID), fields); err != nil {
		return joinResult{}, nil, err
	}
	if err := s.sub.SAdd(ctx, substrate.SignalingRoomsKey, roomID); err != nil {
		s.log.Warn("index room", "room_id", roomID, "error", err)
	}

	outCh := make(chan []byte, 32)
	s.registry.add(&localConn{client: client, outCh: outCh})

	participants, err := loadParticipants(ctx, s.sub, roomID)
	if err != nil {
		participants = nil
	}

	s.broadcastLocal(roomID, clientID, MessagePeerJoined, client)
	s.metrics.ClientsJoined.Inc()
	s.publishSessionEvent(ctx, "joined", roomID)

	return joinResult{Type: string(MessageJoined), Client: client, Participants: participants}, outCh, nil
}

// Route delivers msg to its target, locally if present on this node,
// otherwise via the cross-node relay channel. A non-silent message
// (offer/answer) whose target cannot be found anywhere returns
// TargetMissing; ICE candidates are dropped silently.
func (s *Service) Route(ctx context.Context, msg Message) error {
	s.metrics.MessagesRouted.WithLabelValues(string(msg.Kind)).Inc()

	if conn, ok := s.registry.get(msg.TargetClientID); ok {
		s.deliverLocal(conn.client.ClientID, msg)
		return nil
	}

	fields, err := s.sub.HGetAll(ctx, substrate.SignalingClientKey(msg.TargetClientID))
	if err != nil || fields["home_node_id"] == "" {
		if msg.Kind.silent() {
			return nil
		}
		s.metrics.RelayBounces.Inc()
		return cosimerr.New(cosimerr.TargetMissing, "target client %q not found", msg.TargetClientID)
	}

	env := relayEnvelope{
		OriginNodeID: s.nodeID, TargetNodeID: fields["home_node_id"], TargetClientID: msg.TargetClientID,
		FromClientID: msg.FromClientID, Kind: msg.Kind, Payload: msg.Payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return cosimerr.Wrap(cosimerr.Internal, err, "encode relay envelope")
	}
	return s.sub.Publish(ctx, substrate.SignalingRelayChannel, string(raw))
}

// Leave removes clientID from roomID, best-effort: local and substrate
// state are cleaned up even if one of the substrate calls fails, since a
// departed client's stale record is harmless until its TTL-backed peers
// also expire it.
func (s *Service) Leave(ctx context.Context, roomID, clientID string) {
	localEmpty := s.registry.remove(roomID, clientID)

	_ = s.sub.SRem(ctx, substrate.SignalingRoomMembersKey(roomID), clientID)
	_ = s.sub.Del(ctx, substrate.SignalingClientKey(clientID))

	s.broadcastLocal(roomID, clientID, MessagePeerLeft, Client{ClientID: clientID, RoomID: roomID})
	s.metrics.ClientsLeft.Inc()
	s.publishSessionEvent(ctx, "left", roomID)

	if !localEmpty {
		return
	}
	remaining, err := s.sub.SCard(ctx, substrate.SignalingRoomMembersKey(roomID))
	if err == nil && remaining == 0 {
		_ = s.sub.SRem(ctx, substrate.SignalingRoomsKey, roomID)
	}
}

// publishSessionEvent notifies cosimctl watch subscribers of a room
// membership change; failures are logged only, since the membership
// change itself already succeeded.
func (s *Service) publishSessionEvent(ctx context.Context, kind, roomID string) {
	evt := substrate.SessionEvent{Component: "signaling", Kind: kind, ID: roomID, NodeID: s.nodeID, At: time.Now()}
	if err := substrate.PublishSessionEvent(ctx, s.sub, evt); err != nil {
		s.log.Warn("publish session event", "room_id", roomID, "kind", kind, "error", err)
	}
}

// peerEvent is a peer-joined/peer-left notification, the client's own
// routing record flattened alongside the envelope's `type` discriminator.
type peerEvent struct {
	Type string `json:"type"`
	Client
}

func (s *Service) broadcastLocal(roomID, exceptClientID string, kind MessageKind, client Client) {
	raw, err := json.Marshal(peerEvent{Type: string(kind), Client: client})
	if err != nil {
		return
	}
	for _, peer := range s.registry.roomPeers(roomID, exceptClientID) {
		select {
		case peer.outCh <- raw:
		default:
		}
	}
}
