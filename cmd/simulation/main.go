// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command simulation starts the CoSim Simulation Service (C2) HTTP server.
//
// # Environment Variables
//
//   - SIMULATION_ADDR: HTTP listen address (default: ":12220")
//   - NODE_ID: this node's identity for lease ownership and frame-stream
//     routing (default: hostname; spec.md §6 names this bare across all
//     four components)
//   - SUBSTRATE_URL: substrate connection string (default:
//     "redis://localhost:6379/0")
//   - FRAME_CACHE_DIR: on-disk directory for the replay frame ring (default: in-memory)
//   - FRAME_BACKPRESSURE: drop-oldest stream subscriber queue depth (default: 4)
//   - LEASE_TTL_MS: session ownership lease TTL (default: 15000)
//   - EXEC_WALL_CLOCK_MS: Execute sandbox wall-clock cap (default: 60000)
//   - JWT_SECRET: HMAC secret for bearer token validation (optional; no-op auth if unset)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: "otel-collector:4317")
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
	"github.com/cosimlabs/cosim/services/simulation"
	"github.com/cosimlabs/cosim/services/simulation/handlers"
)

func main() {
	log := logging.New(logging.Config{Service: "simulation", JSON: true})
	defer log.Close()

	nodeID := getEnv("NODE_ID", hostnameOrDefault("simulation-node"))
	sub, err := substrate.NewRedis(context.Background(), getEnv("SUBSTRATE_URL", "redis://localhost:6379/0"))
	if err != nil {
		log.Error("connect substrate", "error", err)
		os.Exit(1)
	}

	ring, err := substrate.OpenFrameRing(os.Getenv("FRAME_CACHE_DIR"), 256, time.Minute)
	if err != nil {
		log.Error("open frame ring", "error", err)
		os.Exit(1)
	}
	defer ring.Close()

	auth := buildAuthProvider(sub)

	svc := simulation.New(simulation.ServiceConfig{
		Addr:              getEnv("SIMULATION_ADDR", ":12220"),
		OTelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		NodeID:            nodeID,
		FrameBackpressure: getEnvInt("FRAME_BACKPRESSURE", 4),
		LeaseTTL:          time.Duration(getEnvInt("LEASE_TTL_MS", 15000)) * time.Millisecond,
		ExecWallClockCap:  time.Duration(getEnvInt("EXEC_WALL_CLOCK_MS", 60000)) * time.Millisecond,
	}, sub, ring, auth, log)

	handlers.RegisterRoutes(svc.Router(), svc)

	log.Info("starting simulation service", "node_id", nodeID)
	if err := svc.Run(); err != nil {
		log.Error("simulation service exited", "error", err)
		os.Exit(1)
	}
}

func buildAuthProvider(sub substrate.Substrate) authn.Provider {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return authn.NopProvider{}
	}
	return authn.NewJWTProvider([]byte(secret), sub)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func hostnameOrDefault(defaultValue string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return defaultValue
	}
	return h
}
