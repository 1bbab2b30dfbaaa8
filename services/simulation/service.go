// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

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

// ServiceConfig configures the simulation service, following the
// Config/New/Run/Router shape of the orchestrator service but scoped to
// this component's own concerns.
type ServiceConfig struct {
	Addr         string
	OTelEndpoint string
	NodeID       string

	// FrameBackpressure bounds a stream subscriber's outbound queue depth
	// before the oldest buffered message is dropped; 0 falls back to
	// defaultFrameBackpressure (spec.md's FRAME_BACKPRESSURE default of 4).
	FrameBackpressure int

	// ExecWallClockCap bounds how long a single Execute call waits for its
	// sandbox run before returning a timeout result (the run itself is
	// not stopped; see RunSandbox); 0 falls back to
	// defaultExecWallClockCap (spec.md's EXEC_WALL_CLOCK_MS default of
	// 60000ms).
	ExecWallClockCap time.Duration

	// LeaseTTL is spec.md §6's LEASE_TTL_MS; 0 falls back to
	// substrate.DefaultLeaseTTL.
	LeaseTTL time.Duration
}

const defaultExecWallClockCap = 60 * time.Second

func (cfg ServiceConfig) leaseTTL() time.Duration {
	if cfg.LeaseTTL <= 0 {
		return substrate.DefaultLeaseTTL
	}
	return cfg.LeaseTTL
}

// leaseRenewal renews at a third of the TTL, matching
// substrate.DefaultLeaseRenewal's 5s-renewal/15s-TTL ratio.
func (cfg ServiceConfig) leaseRenewal() time.Duration {
	return cfg.leaseTTL() / 3
}

// Service runs the HTTP/WebSocket surface for C2 and owns every
// in-memory Instance this node is the lease holder for.
type Service struct {
	cfg   ServiceConfig
	sub   substrate.Substrate
	auth  authn.Provider
	log   *logging.Logger
	ring  *substrate.FrameRing
	metrics *Metrics
	router *gin.Engine

	mu        sync.Mutex
	instances map[string]*Instance
	cancels   map[string]context.CancelFunc
	subs      map[string]*streamRelay
}

func New(cfg ServiceConfig, sub substrate.Substrate, ring *substrate.FrameRing, auth authn.Provider, log *logging.Logger) *Service {
	s := &Service{
		cfg: cfg, sub: sub, auth: auth, log: log, ring: ring,
		metrics:   NewMetrics(),
		instances: make(map[string]*Instance),
		cancels:   make(map[string]context.CancelFunc),
		subs:      make(map[string]*streamRelay),
	}
	s.initRouter()
	return s
}

func (s *Service) Router() *gin.Engine { return s.router }

// Metrics exposes the service's private Prometheus registry for the
// /metrics handler.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) Run() error {
	s.log.Info("starting simulation service", "addr", s.cfg.Addr)
	return s.router.Run(s.cfg.Addr)
}

// initRouter builds the gin engine and middleware chain; route
// registration happens in the caller (cmd/simulation/main.go), which
// imports both this package and services/simulation/handlers so neither
// package needs to depend on the other.
func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("simulation-service"))
	s.router.Use(authn.Middleware(s.auth))
}

// Create acquires the session's ownership lease and starts its control
// loop. A create attempt on an existing session returns AlreadyExists.
func (s *Service) Create(ctx context.Context, cfg CreateRequest) (State, error) {
	driver, err := NewDriver(cfg.Engine)
	if err != nil {
		return State{}, err
	}

	lease, err := substrate.AcquireLease(ctx, s.sub, substrate.SimLeaseKey(cfg.SessionID), s.cfg.leaseTTL())
	if err != nil {
		return State{}, err
	}

	sessionCfg := sessionConfigFrom(cfg)

	instance, err := NewInstance(sessionCfg, driver, s.sub, s.ring, lease, s.log.Slog(), s.metrics)
	if err != nil {
		_ = lease.Release(ctx)
		return State{}, err
	}

	encoded, _ := json.Marshal(sessionCfg)
	_ = s.sub.Set(ctx, substrate.SimConfigKey(cfg.SessionID), string(encoded), 0)

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.instances[cfg.SessionID] = instance
	s.cancels[cfg.SessionID] = cancel
	s.mu.Unlock()

	go instance.Run(runCtx)
	go lease.RunRenewal(runCtx, s.cfg.leaseRenewal())
	s.metrics.SessionsCreated.Inc()
	s.publishSessionEvent(ctx, "created", cfg.SessionID)

	return instance.Snapshot(), nil
}

// CreateRequest is the create() input, matching spec.md's create()
// signature (session_id, engine, model_ref, w, h, fps, headless).
type CreateRequest struct {
	SessionID string
	Engine    string
	ModelRef  string
	Width     int
	Height    int
	FPS       int
	Headless  bool
}

func sessionConfigFrom(c CreateRequest) Config {
	return Config{SessionID: c.SessionID, Engine: c.Engine, ModelRef: c.ModelRef, Width: c.Width, Height: c.Height, FPS: c.FPS, Headless: c.Headless}
}

// Delete is idempotent: deleting an absent session never fails.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	instance, ok := s.instances[sessionID]
	cancel := s.cancels[sessionID]
	delete(s.instances, sessionID)
	delete(s.cancels, sessionID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	instance.Terminate(ctx)
	_ = s.sub.Del(ctx, substrate.SimConfigKey(sessionID))
	s.metrics.SessionsDeleted.Inc()
	s.publishSessionEvent(ctx, "deleted", sessionID)
	return nil
}

// publishSessionEvent notifies cosimctl watch subscribers of a session
// lifecycle transition; failures are logged, never surfaced to the
// caller, since the session operation itself already succeeded.
func (s *Service) publishSessionEvent(ctx context.Context, kind, sessionID string) {
	evt := substrate.SessionEvent{Component: "simulation", Kind: kind, ID: sessionID, NodeID: s.cfg.NodeID, At: time.Now()}
	if err := substrate.PublishSessionEvent(ctx, s.sub, evt); err != nil {
		s.log.Warn("publish session event", "session_id", sessionID, "kind", kind, "error", err)
	}
}

func (s *Service) lookup(sessionID string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[sessionID]
	if !ok {
		return nil, cosimerr.New(cosimerr.NotFound, "session %q not found", sessionID)
	}
	return instance, nil
}

func (s *Service) GetState(sessionID string) (State, error) {
	instance, err := s.lookup(sessionID)
	if err != nil {
		return State{}, err
	}
	return instance.Snapshot(), nil
}

func (s *Service) SendControl(sessionID string, ctl Control) error {
	instance, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	instance.Enqueue(ctl)
	return nil
}

// ReplayFrames returns any locally-cached frames for sessionID at or
// after fromFrame, serving a reconnect's replay window without a
// substrate round trip.
func (s *Service) ReplayFrames(sessionID string, fromFrame uint64) ([][]byte, error) {
	if s.ring == nil {
		return nil, nil
	}
	return s.ring.Replay(sessionID, fromFrame)
}

// Execute runs req against sessionID's sandbox, returning Busy if the
// session's single user-code slot is occupied.
func (s *Service) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	instance, err := s.lookup(req.SessionID)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !instance.TryExecute() {
		return ExecutionResult{}, slotBusyErr(req.SessionID)
	}
	defer instance.ReleaseExecute()

	wallClockCap := s.cfg.ExecWallClockCap
	if wallClockCap <= 0 {
		wallClockCap = defaultExecWallClockCap
	}
	result := RunSandbox(ctx, instance, req, wallClockCap)
	s.metrics.ExecutionsTotal.WithLabelValues(result.Status).Inc()
	payload, _ := json.Marshal(result)
	_ = s.sub.Publish(ctx, substrate.ExecChannel(req.SessionID), string(payload))
	return result, nil
}
