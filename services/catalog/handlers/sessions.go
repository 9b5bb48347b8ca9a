// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
)

// CreateSession opens a browsing session.
//
// # Description
//
// The body is optional. When it carries a state token the session's
// columns bootstrap from the encoded tuples; an absent or undecodable
// token falls back to the catalog default silently, so stale share
// links still land the user somewhere useful.
//
// # Inputs
//
//   - state (optional): Shareable token from a previous session's
//     link endpoint.
//
// # Outputs
//
//   - 201: SessionView with the session id and initial columns.
//   - 400: Malformed JSON body.
//   - 429: Session cap reached.
func CreateSession(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		// The body is optional; only reject bodies that are present
		// and malformed.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		id, views, err := mgr.Create(req.State)
		if err != nil {
			slog.Error("Failed to create session", "error", err)
			failFor(c, err)
			return
		}
		c.JSON(http.StatusCreated, datatypes.SessionView{ID: id, Columns: views})
	}
}

// GetSession returns the session's current columns.
func GetSession(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		reg, err := mgr.Get(id)
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.SessionView{ID: id, Columns: reg.Columns()})
	}
}

// DeleteSession closes the session and frees its columns.
func DeleteSession(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := mgr.Delete(id); err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": id})
	}
}

// GetSessionLink returns a shareable state token encoding every column's
// parameter selection. Posting the token to the sessions endpoint
// recreates the layout against whatever catalog is loaded then.
func GetSessionLink(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := mgr.Get(c.Param("sessionId"))
		if err != nil {
			failFor(c, err)
			return
		}
		token, err := reg.EncodeState()
		if err != nil {
			slog.Error("Failed to encode session state", "error", err)
			fail(c, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		c.JSON(http.StatusOK, datatypes.LinkResponse{State: token})
	}
}
