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

	"github.com/cosimlabs/cosim/services/documents"
)

// RegisterRoutes wires the document service's HTTP surface onto router.
// Called from cmd/documents/main.go, which is free to import both this
// package and services/documents.
//
// spec.md §6 documents the endpoint as `WS /documents/{workspace_id}/
// {path}`; the path segment can itself contain slashes (a file path
// inside the workspace), so it is taken as gin's catch-all wildcard and
// joined with workspace_id into the single doc_id the document service
// keys sessions by.
func RegisterRoutes(router *gin.Engine, svc *documents.Service) {
	router.GET("/v1/documents/:workspace_id/*path", Session(svc))

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Metrics().Registry, promhttp.HandlerOpts{})))
}
