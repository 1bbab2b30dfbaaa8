// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware holds the gateway's gin.HandlerFunc chain: rate
// limiting and response caching, layered after pkg/authn.Middleware.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/pkg/ratelimit"
)

// ClassResolver maps a request path to the route class a rate limiter
// and the response cache should key on, or ok=false for unclassified
// (unlimited, uncached) routes.
type ClassResolver func(path string) (class string, ok bool)

// RateLimit enforces limiter's per-(subject, route-class) bucket on
// every request whose path resolves to a class. The subject is the
// authenticated identity when present, falling back to the client's
// remote address so unauthenticated routes are still throttled.
func RateLimit(limiter *ratelimit.Limiter, resolve ClassResolver, rejected prometheus.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		class, ok := resolve(c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if info := authn.GetInfo(c); info != nil {
			subject = info.Subject
		}

		if err := limiter.Allow(c.Request.Context(), subject, class); err != nil {
			rejected.Inc()
			c.AbortWithStatusJSON(cosimerr.HTTPStatus(err), cosimerr.Body(err))
			return
		}
		c.Next()
	}
}
