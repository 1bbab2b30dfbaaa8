// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package authn validates bearer tokens for every component's edge.
//
// The Provider interface and its NopProvider default follow the
// open-source/enterprise extension-point idiom of
// pkg/extensions/auth.go: NopProvider lets a single-node deployment
// run without an identity provider, while JWTProvider is the real
// validator wired in front of every HTTP and WebSocket entry point.
package authn

import "context"

// Info carries the identity a request authenticated as.
type Info struct {
	Subject   string
	SessionID string
	JTI       string
	Roles     []string
}

func (i *Info) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Provider validates a bearer token and returns the caller's identity.
// Implementations must be safe for concurrent use.
type Provider interface {
	Validate(ctx context.Context, token string) (*Info, error)
}

// NopProvider authenticates every request as a fixed local identity. It is
// the default for running the coordination plane without a configured
// JWT issuer, mirroring NopAuthProvider's open-source default behavior.
type NopProvider struct{}

func (NopProvider) Validate(context.Context, string) (*Info, error) {
	return &Info{Subject: "local-user", Roles: []string{"admin"}}, nil
}

var _ Provider = NopProvider{}
