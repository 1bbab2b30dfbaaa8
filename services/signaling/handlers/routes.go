// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the signaling service's WebSocket surface.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cosimlabs/cosim/services/signaling"
)

// RegisterRoutes wires the signaling service's WebSocket entry point —
// spec.md §6's single `WS /signaling` endpoint, where room membership
// travels in-band via the join message rather than the URL — plus the
// verification-code endpoints used to hand out ad-hoc pairing links in
// place of a raw room ID, grouped under the same prefix so the gateway's
// dispatch table stays a flat per-component mapping.
func RegisterRoutes(router *gin.Engine, svc *signaling.Service) {
	router.GET("/v1/signaling", Signal(svc))
	router.POST("/v1/signaling/rooms/:room_id/codes", MintCode(svc))
	router.GET("/v1/signaling/rooms/codes/:code", ResolveCode(svc))
	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Metrics().Registry, promhttp.HandlerOpts{})))
}
