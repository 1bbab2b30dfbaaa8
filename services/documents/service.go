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
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// ServiceConfig configures the document service.
type ServiceConfig struct {
	Addr         string
	OTelEndpoint string
	NodeID       string
}

// Service implements the CRDT Document Service (C4).
type Service struct {
	cfg    ServiceConfig
	sub    substrate.Substrate
	auth   authn.Provider
	log    *logging.Logger
	nodeID string

	metrics *Metrics
	router  *gin.Engine

	mu       sync.Mutex
	sessions map[string]*docSession
}

func New(cfg ServiceConfig, sub substrate.Substrate, auth authn.Provider, log *logging.Logger) *Service {
	s := &Service{cfg: cfg, sub: sub, auth: auth, log: log, nodeID: cfg.NodeID, metrics: NewMetrics(), sessions: make(map[string]*docSession)}
	s.initRouter()
	return s
}

func (s *Service) Router() *gin.Engine { return s.router }

// Metrics exposes the service's private Prometheus registry for the
// /metrics handler.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) Run() error {
	s.log.Info("starting document service", "addr", s.cfg.Addr, "node_id", s.nodeID)
	return s.router.Run(s.cfg.Addr)
}

// initRouter builds the gin engine and middleware chain; route
// registration happens in the caller (cmd/documents/main.go), which
// imports both this package and services/documents/handlers so neither
// package needs to depend on the other.
func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("documents-service"))
	s.router.Use(authn.Middleware(s.auth))
}

func (s *Service) lookupSession(docID string) (*docSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[docID]
	if !ok {
		return nil, cosimerr.New(cosimerr.NotFound, "document %q is not open on this node", docID)
	}
	return sess, nil
}

// Join attaches clientID to doc_id's document session, loading it from
// the substrate and starting its background flush/poll loops if this is
// the first local client, and returns the current encoded state plus an
// update channel the caller forwards to its WebSocket.
func (s *Service) Join(ctx context.Context, docID, clientID string) ([]byte, chan []byte, func(), error) {
	s.mu.Lock()
	sess, exists := s.sessions[docID]
	s.mu.Unlock()

	if !exists {
		doc, err := loadDocument(ctx, s.sub, docID)
		if err != nil {
			return nil, nil, nil, err
		}
		sessCtx, cancel := context.WithCancel(context.Background())
		sess = newDocSession(docID, doc, cancel)

		s.mu.Lock()
		s.sessions[docID] = sess
		s.mu.Unlock()

		if err := s.runAwarenessRelay(sessCtx, sess); err != nil {
			s.log.Warn("subscribe awareness channel", "doc_id", docID, "error", err)
		}
		go s.runFlushLoop(sessCtx, sess)
		go s.runPollLoop(sessCtx, sess)
	}

	outCh := sess.addClient(clientID)
	s.metrics.ClientsJoined.Inc()
	s.publishSessionEvent(ctx, "joined", docID)
	return sess.document.snapshot(), outCh, func() { s.leave(docID, clientID) }, nil
}

// ApplyUpdate merges a client's encoded document state into doc_id's
// shared document and fans the merged state out to this node's other
// local clients; persistence is coalesced by the flush loop rather than
// done inline, per the 50ms write-behind contract.
func (s *Service) ApplyUpdate(ctx context.Context, docID, clientID string, raw []byte) error {
	sess, err := s.lookupSession(docID)
	if err != nil {
		return err
	}
	merged, err := sess.document.applyUpdate(raw)
	if err != nil {
		return err
	}
	sess.broadcast(encodeUpdateEvent(merged), clientID)
	s.metrics.UpdatesApplied.Inc()
	return nil
}

func encodeUpdateEvent(encoded []byte) []byte {
	raw, _ := json.Marshal(UpdateMessage{Type: "update", Data: encoded})
	return raw
}

// leave detaches clientID from doc_id, tearing the session down — and
// unsubscribing from its awareness channel — once the last local client
// is gone. Document state in the substrate is retained with no TTL.
func (s *Service) leave(docID, clientID string) {
	s.mu.Lock()
	sess, ok := s.sessions[docID]
	s.mu.Unlock()
	if !ok {
		return
	}

	empty := sess.removeClient(clientID)
	s.metrics.ClientsLeft.Inc()
	s.publishSessionEvent(context.Background(), "left", docID)
	if !empty {
		return
	}

	s.mu.Lock()
	delete(s.sessions, docID)
	s.mu.Unlock()

	sess.cancel()
	if sess.awarenessSub != nil {
		_ = sess.awarenessSub.Close()
	}
}

// publishSessionEvent notifies cosimctl watch subscribers of a document
// session membership change; failures are logged only.
func (s *Service) publishSessionEvent(ctx context.Context, kind, docID string) {
	evt := substrate.SessionEvent{Component: "documents", Kind: kind, ID: docID, NodeID: s.nodeID, At: time.Now()}
	if err := substrate.PublishSessionEvent(ctx, s.sub, evt); err != nil {
		s.log.Warn("publish session event", "doc_id", docID, "kind", kind, "error", err)
	}
}

func (s *Service) runFlushLoop(ctx context.Context, sess *docSession) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background(), sess)
			return
		case <-ticker.C:
			s.flush(ctx, sess)
		}
	}
}

func (s *Service) flush(ctx context.Context, sess *docSession) {
	encoded, ok := sess.document.snapshotIfDirty()
	if !ok {
		return
	}
	if err := s.sub.Set(ctx, substrate.DocStateKey(sess.id), string(encoded), 0); err != nil {
		s.log.Warn("persist document state", "doc_id", sess.id, "error", err)
	}
}

func (s *Service) runPollLoop(ctx context.Context, sess *docSession) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollRemote(ctx, sess)
		}
	}
}

func (s *Service) pollRemote(ctx context.Context, sess *docSession) {
	encoded, err := s.sub.Get(ctx, substrate.DocStateKey(sess.id))
	if err != nil {
		return
	}
	merged, changed, err := sess.document.mergeRemoteState([]byte(encoded))
	if err != nil {
		s.log.Warn("merge remote document state", "doc_id", sess.id, "error", err)
		return
	}
	if changed {
		sess.broadcast(encodeUpdateEvent(merged), "")
	}
}
