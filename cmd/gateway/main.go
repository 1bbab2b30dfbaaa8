// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command gateway starts the CoSim Edge Gateway (C5) HTTP server.
//
// # Environment Variables
//
//   - GATEWAY_ADDR: HTTP listen address (default: ":12200")
//   - NODE_ID: this node's identity (default: hostname; spec.md §6 names
//     this bare across all four components)
//   - SUBSTRATE_URL: substrate connection string (default:
//     "redis://localhost:6379/0")
//   - JWT_SECRET: HMAC secret for bearer token validation (optional; no-op auth if unset)
//   - GATEWAY_POLICY_FILE: path to a YAML route-class policy, hot-reloaded (optional)
//   - SIMULATION_UPSTREAM_URL: base URL of the simulation service
//   - SIGNALING_UPSTREAM_URL: base URL of the signaling service
//   - DOCUMENTS_UPSTREAM_URL: base URL of the document service
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: "otel-collector:4317")
package main

import (
	"context"
	"os"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
	"github.com/cosimlabs/cosim/services/gateway"
)

func main() {
	log := logging.New(logging.Config{Service: "gateway", JSON: true})
	defer log.Close()

	nodeID := getEnv("NODE_ID", hostnameOrDefault("gateway-node"))
	sub, err := substrate.NewRedis(context.Background(), getEnv("SUBSTRATE_URL", "redis://localhost:6379/0"))
	if err != nil {
		log.Error("connect substrate", "error", err)
		os.Exit(1)
	}

	auth := buildAuthProvider(sub)

	svc, err := gateway.New(gateway.ServiceConfig{
		Addr:               getEnv("GATEWAY_ADDR", ":12200"),
		OTelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		NodeID:             nodeID,
		PolicyFile:         os.Getenv("GATEWAY_POLICY_FILE"),
		SimulationUpstream: os.Getenv("SIMULATION_UPSTREAM_URL"),
		SignalingUpstream:  os.Getenv("SIGNALING_UPSTREAM_URL"),
		DocumentsUpstream:  os.Getenv("DOCUMENTS_UPSTREAM_URL"),
	}, sub, auth, log)
	if err != nil {
		log.Error("construct gateway service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	log.Info("starting gateway service", "node_id", nodeID)
	if err := svc.Run(); err != nil {
		log.Error("gateway service exited", "error", err)
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

func hostnameOrDefault(defaultValue string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return defaultValue
	}
	return h
}
