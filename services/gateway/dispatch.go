// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/logging"
)

// Upstream is one entry of the gateway's static dispatch table: requests
// whose path starts with Prefix are proxied to Target.
type Upstream struct {
	Prefix string
	Target *url.URL
}

// Dispatcher forwards requests to the upstream component matching the
// request path, by longest-prefix match. It never pins a client to a
// specific upstream node beyond the single request/connection being
// forwarded, per spec.md's "no client pinning" requirement — cross-node
// addressability is the relay's job, not the gateway's.
type Dispatcher struct {
	log            *logging.Logger
	upstreams      []Upstream
	upstreamErrors prometheus.Counter
}

// NewDispatcher builds a Dispatcher from a prefix->target table, sorted
// longest-prefix-first so /v1/simulations/foo never matches a bare /v1
// catch-all ahead of a more specific entry.
func NewDispatcher(log *logging.Logger, upstreams []Upstream, upstreamErrors prometheus.Counter) *Dispatcher {
	sorted := make([]Upstream, len(upstreams))
	copy(sorted, upstreams)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].Prefix) > len(sorted[j-1].Prefix); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Dispatcher{log: log, upstreams: sorted, upstreamErrors: upstreamErrors}
}

func (d *Dispatcher) match(path string) (Upstream, bool) {
	for _, u := range d.upstreams {
		if strings.HasPrefix(path, u.Prefix) {
			return u, true
		}
	}
	return Upstream{}, false
}

// Handle proxies c's request (HTTP or WebSocket upgrade alike — both are
// plain HTTP connections from a reverse proxy's perspective, since the
// upgrade handshake itself is just an HTTP response the proxy forwards
// byte-for-byte) to the matching upstream.
func (d *Dispatcher) Handle(c *gin.Context) {
	upstream, ok := d.match(c.Request.URL.Path)
	if !ok {
		c.AbortWithStatusJSON(cosimerr.HTTPStatus(cosimerr.New(cosimerr.NotFound, "no upstream for %s", c.Request.URL.Path)),
			cosimerr.Body(cosimerr.New(cosimerr.NotFound, "no upstream for %s", c.Request.URL.Path)))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream.Target)
	originalDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		originalDirector(r)
		r.Host = upstream.Target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		d.upstreamErrors.Inc()
		d.log.Warn("upstream proxy error", "upstream", upstream.Target.String(), "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	proxy.ServeHTTP(c.Writer, c.Request)
}
