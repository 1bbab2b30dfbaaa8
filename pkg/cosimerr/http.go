// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cosimerr

import "net/http"

var httpStatus = map[Kind]int{
	NotFound:          http.StatusNotFound,
	AlreadyExists:     http.StatusConflict,
	Busy:              http.StatusConflict,
	InvalidInput:      http.StatusBadRequest,
	InvalidTransition: http.StatusConflict,
	Unauthorized:      http.StatusUnauthorized,
	TooManyRequests:   http.StatusTooManyRequests,
	DeadlineExceeded:  http.StatusGatewayTimeout,
	Degraded:          http.StatusServiceUnavailable,
	Unavailable:       http.StatusServiceUnavailable,
	Internal:          http.StatusInternalServerError,
	TargetMissing:     http.StatusNotFound,
}

// HTTPStatus maps an error's Kind to the status code the gateway and
// per-component REST handlers should return.
func HTTPStatus(err error) int {
	k := KindOf(err)
	if code, ok := httpStatus[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Body renders the standard {kind, message, retriable} envelope from
// spec section 7 ("Visible behavior").
func Body(err error) map[string]any {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		e = Wrap(Internal, err, "unexpected error")
	}
	return map[string]any{
		"kind":      string(e.Kind),
		"message":   e.Message,
		"retriable": e.Retriable,
	}
}
