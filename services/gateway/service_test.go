// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Service: "gateway-test", Quiet: true})
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sub := substrate.NewRedisFromClient(client)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(upstream.Close)

	svc, err := New(ServiceConfig{
		Addr:               ":0",
		NodeID:             "test-node",
		SimulationUpstream: upstream.URL,
	}, sub, authn.NopProvider{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestService_HealthRoute(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestService_DispatchesToUpstream(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/simulations/s1/state", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestService_UnknownRouteIs404(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/nowhere", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
