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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/watcher"
)

// HealthCheck reports service liveness and the size of the loaded
// catalog snapshot.
func HealthCheck(cat *watcher.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := cat.Manifest()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"records":     m.Metadata.TotalRecords,
			"experiments": m.Metadata.TotalExperiments,
		})
	}
}

// GetManifest returns the catalog summary: schema version, build time,
// and the vocabulary metadata the UI uses to label its controls.
func GetManifest(cat *watcher.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := cat.Manifest()
		c.JSON(http.StatusOK, datatypes.ManifestSummary{
			Version:     m.Version,
			GeneratedAt: m.GeneratedAt.Format(time.RFC3339),
			Metadata:    m.Metadata,
		})
	}
}
