// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/services/signaling"
)

// MintCode handles POST /v1/signaling/rooms/:room_id/codes, issuing a short-lived
// code that ResolveCode can later exchange for the room ID, for handing
// out ad-hoc pairing links instead of a raw room ID.
func MintCode(svc *signaling.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := svc.MintCode(c.Request.Context(), c.Param("room_id"))
		if err != nil {
			c.AbortWithStatusJSON(cosimerr.HTTPStatus(err), cosimerr.Body(err))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": code})
	}
}

// ResolveCode handles GET /v1/signaling/rooms/codes/:code, returning the room ID a
// previously minted code refers to so a client can join with it in place
// of a raw room ID.
func ResolveCode(svc *signaling.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := svc.ResolveCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			c.AbortWithStatusJSON(cosimerr.HTTPStatus(err), cosimerr.Body(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"room_id": roomID})
	}
}
