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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/fetch"
	"github.com/AleutianAI/AlignScope/services/catalog/resolver"
	"github.com/AleutianAI/AlignScope/services/catalog/watcher"
)

// HandleResolve runs one stateless constraint resolution against the
// current catalog snapshot.
//
// # Description
//
// Accepts a tuple plus the set of fields that just changed and returns
// the repaired tuple with its per-field option domains. No session is
// involved; clients use this to preview a selection or to power
// embedded pickers.
//
// # Inputs
//
//   - tuple: The current parameter selection, possibly partial.
//   - changes: The fields the client just edited. An empty set means
//     bootstrap from defaults.
//
// # Outputs
//
//   - 200: ResolveResponse with the repaired tuple and options.
//   - 400: Malformed body.
func HandleResolve(cat *watcher.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		res := resolver.Resolve(cat.Snapshot(), req.Tuple, req.Changes)
		c.JSON(http.StatusOK, datatypes.ResolveResponse{
			Tuple:   res.Tuple,
			Options: res.Options,
		})
	}
}

// HandleResultLookup retrieves the stored decision result for a
// fully-specified tuple without going through a session column.
//
// # Outputs
//
//   - 200: The DecisionResult payload.
//   - 404: No record matches the tuple exactly.
//   - 502: The record exists but its payload could not be read.
func HandleResultLookup(cat *watcher.Catalog, fetcher columns.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		payload, err := fetcher.Fetch(c.Request.Context(), cat.Snapshot(), req.Tuple)
		if err != nil {
			if errors.Is(err, fetch.ErrNotFound) {
				fail(c, http.StatusNotFound, "result_not_found", err.Error())
				return
			}
			slog.Error("Result lookup failed", "error", err)
			fail(c, http.StatusBadGateway, "payload_retrieval_failed", err.Error())
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}
