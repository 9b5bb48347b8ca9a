// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AlignScope/pkg/extensions"
	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/handlers"
	"github.com/AleutianAI/AlignScope/services/catalog/middleware"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
	"github.com/AleutianAI/AlignScope/services/catalog/watcher"
)

// SetupRoutes registers every endpoint of the catalog service. uiDir,
// when non-empty, serves the static UI under /ui with a redirect from
// the root. The extension options guard the /v1 API surface; health,
// metrics, and the static UI stay open for probes and scrapers.
func SetupRoutes(router *gin.Engine, cat *watcher.Catalog, fetcher columns.Fetcher,
	sessions *session.Manager, uiDir string, opts extensions.ServiceOptions) {

	router.GET("/health", handlers.HealthCheck(cat))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if uiDir != "" {
		router.StaticFS("/ui", http.Dir(uiDir))
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/ui/")
		})
	}

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AccessMiddleware(opts.AccessProvider))
	v1.Use(middleware.AuditMiddleware(opts.AuditLogger))
	{
		v1.GET("/manifest", handlers.GetManifest(cat))
		v1.POST("/resolve", handlers.HandleResolve(cat))
		v1.POST("/results/lookup", handlers.HandleResultLookup(cat, fetcher))

		// Session lifecycle and column operations
		sess := v1.Group("/sessions")
		{
			sess.POST("", handlers.CreateSession(sessions))
			sess.GET("/:sessionId", handlers.GetSession(sessions))
			sess.DELETE("/:sessionId", handlers.DeleteSession(sessions))
			sess.GET("/:sessionId/link", handlers.GetSessionLink(sessions))
			sess.GET("/:sessionId/ws", handlers.SessionStream(sessions))
			sess.POST("/:sessionId/columns", handlers.AddColumn(sessions))
			sess.DELETE("/:sessionId/columns/:columnId", handlers.RemoveColumn(sessions))
			sess.POST("/:sessionId/columns/:columnId/events", handlers.ApplyColumnEvent(sessions))
		}
	}
}
