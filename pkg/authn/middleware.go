// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package authn

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
)

const infoContextKey = "cosim_auth_info"

// SetInfo stores the authenticated identity in the Gin context.
func SetInfo(c *gin.Context, info *Info) { c.Set(infoContextKey, info) }

// GetInfo retrieves the authenticated identity, or nil if the request was
// never authenticated.
func GetInfo(c *gin.Context) *Info {
	if v, ok := c.Get(infoContextKey); ok {
		if info, ok := v.(*Info); ok {
			return info
		}
	}
	return nil
}

// Middleware validates the bearer token on every request using provider,
// mirroring the orchestrator's AuthMiddleware but returning the coordination
// plane's standard {kind, message, retriable} error envelope.
func Middleware(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(cosimerr.HTTPStatus(err), cosimerr.Body(err))
			return
		}
		SetInfo(c, info)
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
