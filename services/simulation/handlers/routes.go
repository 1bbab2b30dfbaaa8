// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cosimlabs/cosim/services/simulation"
)

// RegisterRoutes wires the simulation service's REST and WebSocket
// surface onto router, following routes.SetupRoutes's grouping idiom and
// spec.md §6's literal `/simulations/...` path shapes under the `/v1`
// prefix.
func RegisterRoutes(router *gin.Engine, svc *simulation.Service) {
	v1 := router.Group("/v1/simulations")
	v1.POST("/create", CreateSession(svc))
	v1.DELETE("/:session_id", DeleteSession(svc))
	v1.GET("/:session_id/state", GetState(svc))
	v1.POST("/:session_id/execute", Execute(svc))
	v1.GET("/:session_id/stream", Stream(svc))

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Metrics().Registry, promhttp.HandlerOpts{})))
}
