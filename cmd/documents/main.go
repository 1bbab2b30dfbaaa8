// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command documents starts the CoSim CRDT Document Service (C4) HTTP server.
//
// # Environment Variables
//
//   - DOCUMENTS_ADDR: HTTP listen address (default: ":12240")
//   - NODE_ID: this node's identity, used to tag awareness broadcasts so
//     a node can discard its own echo (default: hostname; spec.md §6
//     names this bare across all four components)
//   - SUBSTRATE_URL: substrate connection string (default:
//     "redis://localhost:6379/0")
//   - JWT_SECRET: HMAC secret for bearer token validation (optional; no-op auth if unset)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: "otel-collector:4317")
package main

import (
	"context"
	"os"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/logging"
	"github.com/cosimlabs/cosim/pkg/substrate"
	"github.com/cosimlabs/cosim/services/documents"
	"github.com/cosimlabs/cosim/services/documents/handlers"
)

func main() {
	log := logging.New(logging.Config{Service: "documents", JSON: true})
	defer log.Close()

	nodeID := getEnv("NODE_ID", hostnameOrDefault("documents-node"))
	sub, err := substrate.NewRedis(context.Background(), getEnv("SUBSTRATE_URL", "redis://localhost:6379/0"))
	if err != nil {
		log.Error("connect substrate", "error", err)
		os.Exit(1)
	}

	auth := buildAuthProvider(sub)

	svc := documents.New(documents.ServiceConfig{
		Addr:         getEnv("DOCUMENTS_ADDR", ":12240"),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		NodeID:       nodeID,
	}, sub, auth, log)

	handlers.RegisterRoutes(svc.Router(), svc)

	log.Info("starting document service", "node_id", nodeID)
	if err := svc.Run(); err != nil {
		log.Error("document service exited", "error", err)
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
