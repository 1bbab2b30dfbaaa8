// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cosim"

// Metrics follows the promauto registration idiom of
// services/orchestrator/observability/metrics.go, scoped to the
// simulation service's own counters instead of LLM streaming metrics.
// Each instance owns a private Registry rather than registering against
// prometheus's global DefaultRegisterer, so constructing more than one
// Service per process (as the test suite does) never double-registers a
// metric name.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsCreated prometheus.Counter
	SessionsDeleted prometheus.Counter
	FramesRendered  prometheus.Counter
	ExecutionsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "simulation", Name: "sessions_created_total",
			Help: "Total simulation sessions created",
		}),
		SessionsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "simulation", Name: "sessions_deleted_total",
			Help: "Total simulation sessions deleted",
		}),
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "simulation", Name: "frames_rendered_total",
			Help: "Total frames rendered across all sessions",
		}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "simulation", Name: "executions_total",
			Help: "Total sandboxed executions by result status",
		}, []string{"status"}),
	}
}
