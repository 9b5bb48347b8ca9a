// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/pkg/extensions"
)

// AuditMiddleware creates a Gin middleware that records one audit event
// per API request.
//
// # Description
//
// Runs the handler chain, then builds an AuditEvent from the request
// method, matched route, response status, and the viewer identity left
// in the context by AccessMiddleware. The event is handed to the
// configured AuditLogger; with the default NopAuditLogger this is a
// no-op.
//
// Audit failures never fail the request. They are logged and dropped,
// since a broken audit sink must not take the catalog down with it.
//
// # Inputs
//
//   - auditor: AuditLogger receiving the events. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AccessMiddleware(opts.AccessProvider))
//	v1.Use(middleware.AuditMiddleware(opts.AuditLogger))
//
// # Assumptions
//
//   - Registered after AccessMiddleware so the viewer identity is set
//   - Auditor is safe for concurrent calls
func AuditMiddleware(auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := extensions.AuditEvent{
			EventType:    auditEventType(c.Request.Method),
			Timestamp:    start.UTC(),
			UserID:       auditUserID(c),
			Action:       auditAction(c.Request.Method),
			ResourceType: auditResourceType(c.FullPath()),
			ResourceID:   auditResourceID(c),
			Outcome:      auditOutcome(status),
			Metadata: map[string]any{
				"path":        c.FullPath(),
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   c.ClientIP(),
			},
		}

		if err := auditor.Log(c.Request.Context(), event); err != nil {
			slog.Warn("audit log failed",
				"event_type", event.EventType,
				"resource_type", event.ResourceType,
				"error", err)
		}
	}
}

// auditEventType maps an HTTP method to the event category.
func auditEventType(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "data.read"
	case http.MethodDelete:
		return "data.delete"
	default:
		return "data.write"
	}
}

// auditAction maps an HTTP method to a CRUD-ish action name.
func auditAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// auditResourceType derives the resource category from the matched
// route pattern. An empty pattern means no route matched.
func auditResourceType(path string) string {
	switch {
	case path == "":
		return "unknown"
	case strings.Contains(path, "/columns"):
		return "column"
	case strings.Contains(path, "/sessions"):
		return "session"
	case strings.Contains(path, "/results"):
		return "result"
	case strings.Contains(path, "/resolve"):
		return "resolution"
	case strings.Contains(path, "/manifest"):
		return "manifest"
	default:
		return "service"
	}
}

// auditResourceID picks the most specific path parameter on the route.
func auditResourceID(c *gin.Context) string {
	if id := c.Param("columnId"); id != "" {
		return id
	}
	return c.Param("sessionId")
}

// auditUserID reads the viewer identity set by AccessMiddleware.
func auditUserID(c *gin.Context) string {
	if info := GetAccessInfo(c); info != nil && info.UserID != "" {
		return info.UserID
	}
	return "anonymous"
}

// auditOutcome buckets the response status.
func auditOutcome(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return "success"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "blocked"
	case status < http.StatusInternalServerError:
		return "failure"
	default:
		return "error"
	}
}
