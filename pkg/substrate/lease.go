// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package substrate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

// Lease is a cluster-wide exclusive ownership token, set-if-absent with a
// TTL and renewed periodically by its holder. Modeled directly on
// RedisLock in original_source/CoSim/backend/src/co_sim/core/redis.py:
// a random token proves ownership so a holder whose TTL lapsed and was
// reacquired by someone else never deletes the new holder's lease.
//
// The simulation control loop uses this to decide who runs a session;
// losing renewal means stepping stops and the in-memory instance is
// released, per spec.md's ownership-lease contract.
type Lease struct {
	sub   Substrate
	key   string
	token string
	ttl   time.Duration

	mu      sync.Mutex
	held    bool
	lostCh  chan struct{}
	lostOne sync.Once
}

const (
	DefaultLeaseTTL     = 15 * time.Second
	DefaultLeaseRenewal = 5 * time.Second
)

// AcquireLease attempts to take the lease at key. Returns
// cosimerr.AlreadyExists if another holder already owns it.
func AcquireLease(ctx context.Context, sub Substrate, key string, ttl time.Duration) (*Lease, error) {
	token, err := randomToken()
	if err != nil {
		return nil, cosimerr.Wrap(cosimerr.Internal, err, "generate lease token")
	}
	ok, err := sub.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cosimerr.New(cosimerr.AlreadyExists, "lease %q already held", key)
	}
	return &Lease{sub: sub, key: key, token: token, ttl: ttl, held: true, lostCh: make(chan struct{})}, nil
}

// Renew re-applies the lease TTL. Returns false if renewal failed, at
// which point the caller must stop treating itself as the owner and
// Release will subsequently be a no-op.
func (l *Lease) Renew(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return false
	}
	current, err := l.sub.Get(ctx, l.key)
	if err != nil || current != l.token {
		l.markLostLocked()
		return false
	}
	if err := l.sub.Expire(ctx, l.key, l.ttl); err != nil {
		l.markLostLocked()
		return false
	}
	return true
}

// RunRenewal renews the lease every interval until ctx is canceled or
// renewal fails. A failed renewal closes Lost(); cancellation of ctx
// returns without closing it. Intended to run in its own goroutine
// alongside a session's control loop, per spec.md's "renewed every 5s".
func (l *Lease) RunRenewal(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.Renew(ctx) {
				return
			}
		}
	}
}

// Lost returns a channel closed when this lease is known to no longer be
// held (renewal failure or explicit loss detection).
func (l *Lease) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lostCh
}

func (l *Lease) markLostLocked() {
	l.held = false
	l.lostOne.Do(func() { close(l.lostCh) })
}

// Release deletes the lease key if this holder's token is still current,
// so a lease that already rolled over to a new holder is left untouched.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	held := l.held
	l.held = false
	l.mu.Unlock()
	if !held {
		return nil
	}
	_, err := l.sub.CompareAndDelete(ctx, l.key, l.token)
	return err
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
