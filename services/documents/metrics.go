// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package documents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cosim"

// Metrics carries every Prometheus collector the document service
// exposes, bound to a private registry so multiple Service instances
// (e.g. across test cases) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ClientsJoined  prometheus.Counter
	ClientsLeft    prometheus.Counter
	UpdatesApplied prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		ClientsJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "documents", Name: "clients_joined_total",
			Help: "Total number of clients that joined a document session on this node.",
		}),
		ClientsLeft: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "documents", Name: "clients_left_total",
			Help: "Total number of clients that left a document session on this node.",
		}),
		UpdatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "documents", Name: "updates_applied_total",
			Help: "Total number of CRDT update merges applied on this node.",
		}),
	}
}
