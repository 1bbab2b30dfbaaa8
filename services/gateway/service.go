// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"net/url"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/ratelimit"
	"github.com/cosimlabs/cosim/pkg/respcache"
	"github.com/cosimlabs/cosim/pkg/substrate"
	gwmiddleware "github.com/cosimlabs/cosim/services/gateway/middleware"
)

// ServiceConfig configures the gateway's listen address, upstream
// targets, and optional policy file.
type ServiceConfig struct {
	Addr         string
	OTelEndpoint string
	NodeID       string

	SimulationUpstream string
	SignalingUpstream  string
	DocumentsUpstream  string

	// PolicyFile, if set, is a YAML route-class policy hot-reloaded via
	// fsnotify; unset falls back to DefaultPolicy.
	PolicyFile string
}

// Service is the Edge Gateway (C5): it authenticates, rate-limits,
// caches, and dispatches every request to the matching upstream
// component.
type Service struct {
	cfg ServiceConfig
	sub substrate.Substrate
	log *logging.Logger

	policy     *Policy
	watcher    *fsnotify.Watcher
	limiter    *ratelimit.Limiter
	cache      *respcache.Cache
	dispatcher *Dispatcher
	metrics    *Metrics

	router *gin.Engine
}

func New(cfg ServiceConfig, sub substrate.Substrate, auth authn.Provider, log *logging.Logger) (*Service, error) {
	policy := DefaultPolicy()
	var watcher *fsnotify.Watcher
	if cfg.PolicyFile != "" {
		loaded, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = loaded
		watcher, err = WatchPolicyFile(cfg.PolicyFile, policy, log)
		if err != nil {
			return nil, err
		}
	}

	upstreams, err := buildUpstreams(cfg)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	s := &Service{
		cfg:        cfg,
		sub:        sub,
		log:        log,
		policy:     policy,
		watcher:    watcher,
		limiter:    ratelimit.New(sub, policy.RateLimitClasses()),
		cache:      respcache.New(sub, respcache.MaxTTL),
		dispatcher: NewDispatcher(log, upstreams, metrics.UpstreamErrors),
		metrics:    metrics,
	}
	s.initRouter(auth)
	return s, nil
}

func buildUpstreams(cfg ServiceConfig) ([]Upstream, error) {
	entries := []struct {
		prefix string
		target string
	}{
		{"/v1/simulations", cfg.SimulationUpstream},
		{"/v1/signaling", cfg.SignalingUpstream},
		{"/v1/documents", cfg.DocumentsUpstream},
	}
	upstreams := make([]Upstream, 0, len(entries))
	for _, e := range entries {
		if e.target == "" {
			continue
		}
		target, err := url.Parse(e.target)
		if err != nil {
			return nil, err
		}
		upstreams = append(upstreams, Upstream{Prefix: e.prefix, Target: target})
	}
	return upstreams, nil
}

func (s *Service) Router() *gin.Engine { return s.router }

// Metrics exposes the service's private Prometheus registry for the
// /metrics handler.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) Run() error {
	s.log.Info("starting gateway service", "addr", s.cfg.Addr)
	return s.router.Run(s.cfg.Addr)
}

// Close releases the policy file watcher, if one was started.
func (s *Service) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Service) classFor(path string) (string, bool) {
	class, ok := s.policy.ClassFor(path)
	if !ok {
		return "", false
	}
	return class.Class, true
}

func (s *Service) initRouter(auth authn.Provider) {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("gateway-service"))
	s.router.Use(authn.Middleware(auth))
	s.router.Use(gwmiddleware.RateLimit(s.limiter, s.classFor, s.metrics.RateLimited))
	s.router.Use(gwmiddleware.ResponseCache(s.cache, s.classFor, s.metrics.CacheHits))
	s.router.Use(s.recordRequest)

	s.router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "healthy"}) })
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	s.router.NoRoute(s.dispatcher.Handle)
}

func (s *Service) recordRequest(c *gin.Context) {
	class, _ := s.classFor(c.Request.URL.Path)
	if class == "" {
		class = "unclassified"
	}
	s.metrics.RequestsTotal.WithLabelValues(class).Inc()
	c.Next()
}
