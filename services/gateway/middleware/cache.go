// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosimlabs/cosim/pkg/authn"
	"github.com/cosimlabs/cosim/pkg/respcache"
)

var errNotCacheable = errors.New("upstream response not cacheable")

// bodyRecorder wraps gin.ResponseWriter to capture the written body
// alongside the normal passthrough write, so a cache-miss fill can save
// exactly what the client received.
type bodyRecorder struct {
	gin.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ResponseCache serves cached bodies for GET requests whose path
// resolves to a route class, scoping the cache key by the authenticated
// subject (or "anonymous") per spec.md's "(route, query, subject-scope)"
// key contract. Only 200 responses are cached.
func ResponseCache(cache *respcache.Cache, resolve ClassResolver, hits prometheus.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if _, ok := resolve(c.Request.URL.Path); !ok {
			c.Next()
			return
		}

		scope := "anonymous"
		if info := authn.GetInfo(c); info != nil {
			scope = info.Subject
		}
		scopeKey := scope + "?" + c.Request.URL.RawQuery

		filled := false
		body, err := cache.GetOrFill(c.Request.Context(), c.Request.URL.Path, scopeKey, func(ctx context.Context) (string, error) {
			filled = true
			rec := &bodyRecorder{ResponseWriter: c.Writer, status: http.StatusOK}
			c.Writer = rec
			c.Next()
			if rec.status != http.StatusOK {
				return "", errNotCacheable
			}
			return rec.buf.String(), nil
		})
		if err == errNotCacheable {
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if !filled {
			hits.Inc()
		}
		if !c.Writer.Written() {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
		}
	}
}
