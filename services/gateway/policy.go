// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway implements the Edge Gateway (C5): the single entry
// point that terminates browser HTTP/WebSocket traffic, authenticates,
// rate-limits, caches, and dispatches to the simulation, signaling, and
// document services.
package gateway

import (
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/ratelimit"
)

// RouteClassConfig is one entry of the policy file: a URL prefix mapped
// to a rate-limit class and a response-cache TTL.
type RouteClassConfig struct {
	Prefix   string        `yaml:"prefix"`
	Class    string        `yaml:"class"`
	Limit    int64         `yaml:"limit"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// policyFile is the on-disk YAML shape.
type policyFile struct {
	Routes []RouteClassConfig `yaml:"routes"`
}

// defaultPolicy is used when no policy file is configured, giving the
// gateway sane limits out of the box; the dedicated "auth" class
// implements the supplemented login-throttling feature (tighter default
// than general traffic).
var defaultPolicy = []RouteClassConfig{
	{Prefix: "/v1/auth", Class: "auth", Limit: 5, Window: time.Minute, Burst: 2},
	{Prefix: "/v1/simulations", Class: "simulation", Limit: 120, Window: time.Minute, Burst: 20, CacheTTL: 2 * time.Second},
	{Prefix: "/v1/signaling", Class: "signaling", Limit: 300, Window: time.Minute, Burst: 40},
	{Prefix: "/v1/documents", Class: "documents", Limit: 300, Window: time.Minute, Burst: 40},
}

// Policy is the gateway's live, hot-reloadable routing/rate-limit
// configuration. It is read far more often than it is written, so reads
// take an RWMutex's read lock.
type Policy struct {
	mu     sync.RWMutex
	routes []RouteClassConfig
}

// NewPolicy builds a Policy from an explicit route-class list, longest
// prefix first so more specific prefixes win.
func NewPolicy(routes []RouteClassConfig) *Policy {
	p := &Policy{}
	p.set(routes)
	return p
}

// DefaultPolicy returns a Policy seeded from defaultPolicy.
func DefaultPolicy() *Policy { return NewPolicy(defaultPolicy) }

func (p *Policy) set(routes []RouteClassConfig) {
	sorted := make([]RouteClassConfig, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Prefix) > len(sorted[j].Prefix) })
	p.mu.Lock()
	p.routes = sorted
	p.mu.Unlock()
}

// ClassFor returns the route-class config matching path's longest
// registered prefix, or ok=false if no route class covers it (such
// routes are unlimited and uncached).
func (p *Policy) ClassFor(path string) (RouteClassConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.routes {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return RouteClassConfig{}, false
}

// RateLimitClasses flattens the policy into ratelimit.Class values for
// ratelimit.New.
func (p *Policy) RateLimitClasses() []ratelimit.Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	classes := make([]ratelimit.Class, 0, len(p.routes))
	for _, r := range p.routes {
		classes = append(classes, ratelimit.Class{Name: r.Class, Limit: r.Limit, Window: r.Window, Burst: r.Burst})
	}
	return classes
}

// LoadPolicyFile parses a YAML policy file from path.
func LoadPolicyFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, err
	}
	return NewPolicy(pf.Routes), nil
}

// WatchPolicyFile reloads the policy whenever path changes on disk,
// logging and ignoring transient parse failures so a bad edit never
// brings the gateway's routing table down; the last good policy stays
// in effect until a valid file is written.
func WatchPolicyFile(path string, policy *Policy, log *logging.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := LoadPolicyFile(path)
				if err != nil {
					log.Warn("reload policy file", "path", path, "error", err)
					continue
				}
				policy.set(reloaded.routes)
				log.Info("reloaded gateway policy", "path", path, "routes", len(reloaded.routes))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("policy file watch error", "error", err)
			}
		}
	}()
	return watcher, nil
}
