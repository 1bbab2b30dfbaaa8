// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements the gateway's token-bucket limiter per
// (subject, route-class), layering golang.org/x/time/rate as a local
// fast-path in front of the substrate-backed distributed counter so a
// burst against one node does not need a round trip to the substrate for
// every request.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// Class configures the bucket parameters for one route class, per
// spec.md's "bucket parameters are per route class" contract.
type Class struct {
	Name     string
	Limit    int64         // max requests per Window
	Window   time.Duration
	Burst    int           // local fast-path burst size
}

// Limiter enforces per-(subject, route-class) limits. The local limiter
// rejects obvious bursts without a substrate round trip; anything it
// admits still increments the distributed counter so the limit holds
// cluster-wide, not per-node.
type Limiter struct {
	sub     substrate.Substrate
	classes map[string]Class

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func New(sub substrate.Substrate, classes []Class) *Limiter {
	byName := make(map[string]Class, len(classes))
	for _, c := range classes {
		byName[c.Name] = c
	}
	return &Limiter{sub: sub, classes: byName, local: make(map[string]*rate.Limiter)}
}

// Allow reports whether a request from subject against routeClass may
// proceed, returning cosimerr.TooManyRequests when the bucket is exhausted.
func (l *Limiter) Allow(ctx context.Context, subject, routeClass string) error {
	class, ok := l.classes[routeClass]
	if !ok {
		return nil // unconfigured route classes are unlimited
	}

	if !l.localLimiter(subject, routeClass, class).Allow() {
		return cosimerr.New(cosimerr.TooManyRequests, "rate limit exceeded for %s", routeClass)
	}

	key := substrate.RateLimitKey(subject, routeClass)
	count, err := l.sub.Incr(ctx, key, 1, class.Window)
	if err != nil {
		return err
	}
	if count > class.Limit {
		return cosimerr.New(cosimerr.TooManyRequests, "rate limit exceeded for %s", routeClass)
	}
	return nil
}

func (l *Limiter) localLimiter(subject, routeClass string, class Class) *rate.Limiter {
	key := subject + ":" + routeClass
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.local[key]
	if !ok {
		perSecond := rate.Limit(float64(class.Limit) / class.Window.Seconds())
		lim = rate.NewLimiter(perSecond, class.Burst)
		l.local[key] = lim
	}
	return lim
}
