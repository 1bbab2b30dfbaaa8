// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the simulation service's REST and WebSocket
// surface, following the gin-handler idiom of
// services/orchestrator/handlers/sessions.go and websocket.go.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/cosimlabs/cosim/pkg/cosimerr"
	"github.com/cosimlabs/cosim/services/simulation"
)

var validate = validator.New()

// CreateSessionBody is the create() REST request body.
type CreateSessionBody struct {
	SessionID string `json:"session_id" validate:"required"`
	Engine    string `json:"engine" validate:"required,oneof=mujoco pybullet"`
	ModelRef  string `json:"model_ref"`
	Width     int    `json:"width" validate:"required,gt=0"`
	Height    int    `json:"height" validate:"required,gt=0"`
	FPS       int    `json:"fps" validate:"required,gt=0"`
	Headless  bool   `json:"headless"`
}

func CreateSession(svc *simulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CreateSessionBody
		if err := c.ShouldBindJSON(&body); err != nil {
			respondErr(c, cosimerr.Wrap(cosimerr.InvalidInput, err, "decode request body"))
			return
		}
		if err := validate.Struct(body); err != nil {
			respondErr(c, cosimerr.Wrap(cosimerr.InvalidInput, err, "validate request body"))
			return
		}

		state, err := svc.Create(c.Request.Context(), simulation.CreateRequest{
			SessionID: body.SessionID, Engine: body.Engine, ModelRef: body.ModelRef,
			Width: body.Width, Height: body.Height, FPS: body.FPS, Headless: body.Headless,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, state)
	}
}

func DeleteSession(svc *simulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("session_id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func GetState(svc *simulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := svc.GetState(c.Param("session_id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

type ExecuteBody struct {
	Code     string `json:"code" validate:"required"`
	ModelRef string `json:"model_ref"`
	Cwd      string `json:"cwd"`
}

func Execute(svc *simulation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ExecuteBody
		if err := c.ShouldBindJSON(&body); err != nil {
			respondErr(c, cosimerr.Wrap(cosimerr.InvalidInput, err, "decode request body"))
			return
		}
		if err := validate.Struct(body); err != nil {
			respondErr(c, cosimerr.Wrap(cosimerr.InvalidInput, err, "validate request body"))
			return
		}

		sessionID := c.Param("session_id")
		result, err := svc.Execute(c.Request.Context(), simulation.ExecutionRequest{
			SessionID: sessionID, Code: body.Code, ModelRef: body.ModelRef, Cwd: body.Cwd,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func respondErr(c *gin.Context, err error) {
	c.AbortWithStatusJSON(cosimerr.HTTPStatus(err), cosimerr.Body(err))
}
