// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command signaling starts the CoSim Signaling Relay (C3) HTTP server.
//
// # Environment Variables
//
//   - SIGNALING_ADDR: HTTP listen address (default: ":12230")
//   - NODE_ID: this node's identity for relay routing and heartbeats
//     (default: hostname; spec.md §6 names this bare across all four
//     components)
//   - SUBSTRATE_URL: substrate connection string (default:
//     "redis://localhost:6379/0")
//   - HEARTBEAT_INTERVAL_MS: server heartbeat publish interval (default: 5000)
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
	"github.com/cosimlabs/cosim/services/signaling"
	"github.com/cosimlabs/cosim/services/signaling/handlers"
)

func main() {
	log := logging.New(logging.Config{Service: "signaling", JSON: true})
	defer log.Close()

	nodeID := getEnv("NODE_ID", hostnameOrDefault("signaling-node"))
	sub, err := substrate.NewRedis(context.Background(), getEnv("SUBSTRATE_URL", "redis://localhost:6379/0"))
	if err != nil {
		log.Error("connect substrate", "error", err)
		os.Exit(1)
	}

	auth := buildAuthProvider(sub)

	svc := signaling.New(signaling.ServiceConfig{
		Addr:              getEnv("SIGNALING_ADDR", ":12230"),
		OTelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		NodeID:            nodeID,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_MS", 5000)) * time.Millisecond,
	}, sub, auth, log)

	handlers.RegisterRoutes(svc.Router(), svc)

	log.Info("starting signaling service", "node_id", nodeID)
	if err := svc.Run(); err != nil {
		log.Error("signaling service exited", "error", err)
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
