// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package authn

import (
	"sync"
	"time"
)

type cacheEntry struct {
	info    *Info
	expires time.Time
}

// validationCache holds successful per-token validations so the blacklist
// is not re-checked on every request. An in-process cache is sufficient
// because revocation only needs to take effect within the cache TTL, per
// spec.md's "cached per-token with TTL = min(remaining token lifetime, 60s)".
type validationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newValidationCache() *validationCache {
	return &validationCache{entries: make(map[string]cacheEntry)}
}

func (c *validationCache) get(token string) (*Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	if !ok || time.Now().After(entry.expires) {
		delete(c.entries, token)
		return nil, false
	}
	return entry.info, true
}

func (c *validationCache) set(token string, info *Info, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = cacheEntry{info: info, expires: time.Now().Add(ttl)}
}
