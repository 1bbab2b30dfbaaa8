// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

// claims is the coordination plane's JWT payload: (subject, session, jti)
// per spec.md's gateway auth contract, plus roles for authorization.
type claims struct {
	jwt.RegisteredClaims
	SessionID string   `json:"sid"`
	Roles     []string `json:"roles"`
}

// JWTProvider validates HS256-signed bearer tokens and rejects any whose
// jti is present in the substrate blacklist (C1 key revoked:{jti}).
// Successful validations are cached per-token for min(remaining token
// lifetime, 60s) so every request does not re-check the blacklist.
type JWTProvider struct {
	secret    []byte
	sub       substrate.Substrate
	cacheTTL  time.Duration
	cache     *validationCache
}

func NewJWTProvider(secret []byte, sub substrate.Substrate) *JWTProvider {
	return &JWTProvider{secret: secret, sub: sub, cacheTTL: 60 * time.Second, cache: newValidationCache()}
}

func (p *JWTProvider) Validate(ctx context.Context, token string) (*Info, error) {
	if token == "" {
		return nil, cosimerr.New(cosimerr.Unauthorized, "missing bearer token")
	}
	if info, ok := p.cache.get(token); ok {
		return info, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, cosimerr.Wrap(cosimerr.Unauthorized, err, "invalid token")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" || c.ID == "" {
		return nil, cosimerr.New(cosimerr.Unauthorized, "token missing required claims")
	}

	revoked, err := p.sub.Get(ctx, substrate.RevokedTokenKey(c.ID))
	if err == nil && revoked != "" {
		return nil, cosimerr.New(cosimerr.Unauthorized, "token revoked")
	}
	if err != nil && cosimerr.KindOf(err) != cosimerr.NotFound {
		return nil, cosimerr.Wrap(cosimerr.Unavailable, err, "check token blacklist")
	}

	info := &Info{Subject: c.Subject, SessionID: c.SessionID, JTI: c.ID, Roles: c.Roles}

	ttl := p.cacheTTL
	if c.ExpiresAt != nil {
		if remaining := time.Until(c.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		p.cache.set(token, info, ttl)
	}
	return info, nil
}

var _ Provider = (*JWTProvider)(nil)
