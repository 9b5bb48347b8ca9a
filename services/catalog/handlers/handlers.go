// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP endpoints of the catalog
// service: session lifecycle, column operations, stateless resolution,
// result lookup, and the per-session websocket stream.
//
// Handlers are constructors returning gin.HandlerFunc so each endpoint
// receives exactly the dependencies it uses. Error bodies share the
// datatypes.ErrorResponse shape; dead ends and fetch failures are not
// HTTP errors, they surface on the column views themselves.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
)

// fail writes the uniform error body.
func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, datatypes.ErrorResponse{Error: msg, Code: code})
}

// errorStatus maps session and column errors to an HTTP status and a
// machine-readable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests, "session_limit_reached"
	case errors.Is(err, session.ErrManagerClosed),
		errors.Is(err, columns.ErrRegistryClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, columns.ErrColumnNotFound):
		return http.StatusNotFound, "column_not_found"
	case errors.Is(err, columns.ErrLastColumn):
		return http.StatusConflict, "last_column"
	case errors.Is(err, columns.ErrTooManyColumns):
		return http.StatusConflict, "column_limit_reached"
	case errors.Is(err, columns.ErrKDMASetFull):
		return http.StatusConflict, "kdma_limit_reached"
	case errors.Is(err, columns.ErrUnknownEvent),
		errors.Is(err, datatypes.ErrEventValueRequired),
		errors.Is(err, datatypes.ErrEventNameRequired),
		errors.Is(err, datatypes.ErrEventValue01Required):
		return http.StatusBadRequest, "invalid_event"
	}
	return http.StatusInternalServerError, "internal_error"
}

// failFor writes the mapped error body for a session or column error.
func failFor(c *gin.Context, err error) {
	status, code := errorStatus(err)
	fail(c, status, code, err.Error())
}
