// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the orchestrator's promauto registration idiom, but
// registers against a private Registry rather than the global
// DefaultRegisterer so constructing more than one Service per process
// never double-registers a metric name.
type Metrics struct {
	Registry *prometheus.Registry

	ClientsJoined  prometheus.Counter
	ClientsLeft    prometheus.Counter
	MessagesRouted *prometheus.CounterVec
	RelayBounces   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		ClientsJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cosim", Subsystem: "signaling", Name: "clients_joined_total",
			Help: "Total clients that joined a room.",
		}),
		ClientsLeft: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cosim", Subsystem: "signaling", Name: "clients_left_total",
			Help: "Total clients that left a room.",
		}),
		MessagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cosim", Subsystem: "signaling", Name: "messages_routed_total",
			Help: "Total signaling messages routed, by kind.",
		}, []string{"kind"}),
		RelayBounces: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cosim", Subsystem: "signaling", Name: "relay_target_missing_total",
			Help: "Total non-silent messages whose target could not be located.",
		}),
	}
}
