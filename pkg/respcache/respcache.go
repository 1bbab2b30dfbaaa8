// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package respcache caches read-heavy GET responses in the substrate with
// a short TTL, keyed by (route, query, subject-scope). Fill calls for the
// same key are coalesced with golang.org/x/sync/singleflight so a cache
// stampede does not fan out to the upstream component.
package respcache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

const MaxTTL = 5 * time.Second

// Cache is a substrate-backed response cache.
type Cache struct {
	sub   substrate.Substrate
	ttl   time.Duration
	group singleflight.Group
}

func New(sub substrate.Substrate, ttl time.Duration) *Cache {
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &Cache{sub: sub, ttl: ttl}
}

// GetOrFill returns the cached body for (route, scopeKey), calling fill to
// populate it on a miss. Concurrent misses for the same key share one
// fill call.
func (c *Cache) GetOrFill(ctx context.Context, route, scopeKey string, fill func(ctx context.Context) (string, error)) (string, error) {
	key := substrate.ResponseCacheKey(route, scopeKey)

	if cached, err := c.sub.Get(ctx, key); err == nil {
		return cached, nil
	} else if cosimerr.KindOf(err) != cosimerr.NotFound {
		return "", err
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		body, err := fill(ctx)
		if err != nil {
			return "", err
		}
		if err := c.sub.Set(ctx, key, body, c.ttl); err != nil {
			return "", err
		}
		return body, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate removes a cached entry, used when the underlying resource
// changes before its TTL naturally expires.
func (c *Cache) Invalidate(ctx context.Context, route, scopeKey string) error {
	return c.sub.Del(ctx, substrate.ResponseCacheKey(route, scopeKey))
}
