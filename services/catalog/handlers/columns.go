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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/observability"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
)

// AddColumn appends a comparison column to the session.
//
// # Description
//
// With copy_from the new column duplicates the named column's
// parameters; otherwise it bootstraps from the catalog default. Either
// way the new column resolves and fetches independently from then on.
//
// # Outputs
//
//   - 201: The new ColumnView.
//   - 404: Unknown session or copy_from column.
//   - 409: Column cap reached.
func AddColumn(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := mgr.Get(c.Param("sessionId"))
		if err != nil {
			failFor(c, err)
			return
		}

		var req datatypes.AddColumnRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		var view datatypes.ColumnView
		if req.CopyFrom != "" {
			view, err = reg.CopyColumn(req.CopyFrom)
		} else {
			view, err = reg.CreateColumn(datatypes.Tuple{}, observability.TriggerCreate)
		}
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// RemoveColumn deletes a column. The last column cannot be removed.
func RemoveColumn(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := mgr.Get(c.Param("sessionId"))
		if err != nil {
			failFor(c, err)
			return
		}
		if err := reg.RemoveColumn(c.Param("columnId")); err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "removed", "column_id": c.Param("columnId")})
	}
}

// ApplyColumnEvent applies one UI event to a column and returns the
// column's view after resolution.
//
// # Description
//
// Select events resolve immediately. setKdmaValue events are debounced
// server-side, so the returned view still shows the pre-edit tuple; the
// resolved state arrives on the websocket stream once the slider
// settles. addKdma and removeKdma resolve immediately like selects.
func ApplyColumnEvent(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := mgr.Get(c.Param("sessionId"))
		if err != nil {
			failFor(c, err)
			return
		}

		var req datatypes.ColumnEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}

		view, err := reg.ApplyEvent(c.Param("columnId"), &req)
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
