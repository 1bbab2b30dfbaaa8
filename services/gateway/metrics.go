// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cosim"

// Metrics carries the gateway's Prometheus collectors, bound to a
// private registry so multiple Service instances (e.g. across test
// cases) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	RateLimited    prometheus.Counter
	CacheHits      prometheus.Counter
	UpstreamErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "gateway", Name: "requests_total",
			Help: "Total number of requests dispatched by the gateway, by route class.",
		}, []string{"class"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "gateway", Name: "rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "gateway", Name: "cache_hits_total",
			Help: "Total number of GET requests served from the response cache.",
		}),
		UpstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "gateway", Name: "upstream_errors_total",
			Help: "Total number of proxying failures to an upstream component.",
		}),
	}
}
