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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AlignScope/pkg/extensions"
)

// recordingAuditLogger captures events for assertions.
type recordingAuditLogger struct {
	events []extensions.AuditEvent
	err    error
}

func (l *recordingAuditLogger) Log(_ context.Context, event extensions.AuditEvent) error {
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, event)
	return nil
}

func (l *recordingAuditLogger) Query(_ context.Context, _ extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	return l.events, nil
}

func (l *recordingAuditLogger) Flush(_ context.Context) error { return nil }

// auditTestRouter wires access + audit the way SetupRoutes does.
func auditTestRouter(logger extensions.AuditLogger) *gin.Engine {
	router := gin.New()
	router.Use(AccessMiddleware(&extensions.NopAccessProvider{}))
	router.Use(AuditMiddleware(logger))

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	router.GET("/v1/manifest", ok)
	router.POST("/v1/sessions", ok)
	router.DELETE("/v1/sessions/:sessionId", ok)
	router.POST("/v1/sessions/:sessionId/columns/:columnId/events", ok)
	router.POST("/v1/results/lookup", ok)
	return router
}

// =============================================================================
// AuditMiddleware Tests
// =============================================================================

func TestAuditMiddleware_RecordsReadEvent(t *testing.T) {
	logger := &recordingAuditLogger{}
	router := auditTestRouter(logger)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/manifest", nil))

	require.Len(t, logger.events, 1)
	event := logger.events[0]
	assert.Equal(t, "data.read", event.EventType)
	assert.Equal(t, "read", event.Action)
	assert.Equal(t, "manifest", event.ResourceType)
	assert.Equal(t, "local-viewer", event.UserID)
	assert.Equal(t, "success", event.Outcome)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "/v1/manifest", event.Metadata["path"])
	assert.Equal(t, http.StatusOK, event.Metadata["status"])
}

func TestAuditMiddleware_ResourceFromRoute(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		target       string
		eventType    string
		action       string
		resourceType string
		resourceID   string
	}{
		{
			name:   "create session",
			method: "POST", target: "/v1/sessions",
			eventType: "data.write", action: "create",
			resourceType: "session", resourceID: "",
		},
		{
			name:   "delete session",
			method: "DELETE", target: "/v1/sessions/sess-1",
			eventType: "data.delete", action: "delete",
			resourceType: "session", resourceID: "sess-1",
		},
		{
			name:   "column event",
			method: "POST", target: "/v1/sessions/sess-1/columns/col-9/events",
			eventType: "data.write", action: "create",
			resourceType: "column", resourceID: "col-9",
		},
		{
			name:   "result lookup",
			method: "POST", target: "/v1/results/lookup",
			eventType: "data.write", action: "create",
			resourceType: "result", resourceID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingAuditLogger{}
			router := auditTestRouter(logger)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			require.Len(t, logger.events, 1)
			event := logger.events[0]
			assert.Equal(t, tt.eventType, event.EventType)
			assert.Equal(t, tt.action, event.Action)
			assert.Equal(t, tt.resourceType, event.ResourceType)
			assert.Equal(t, tt.resourceID, event.ResourceID)
		})
	}
}

func TestAuditMiddleware_OutcomeBuckets(t *testing.T) {
	tests := []struct {
		status  int
		outcome string
	}{
		{http.StatusOK, "success"},
		{http.StatusCreated, "success"},
		{http.StatusBadRequest, "failure"},
		{http.StatusUnauthorized, "blocked"},
		{http.StatusForbidden, "blocked"},
		{http.StatusNotFound, "failure"},
		{http.StatusInternalServerError, "error"},
		{http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		logger := &recordingAuditLogger{}
		router := gin.New()
		router.Use(AuditMiddleware(logger))
		status := tt.status
		router.GET("/v1/manifest", func(c *gin.Context) {
			c.JSON(status, gin.H{})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/manifest", nil))

		require.Len(t, logger.events, 1)
		assert.Equal(t, tt.outcome, logger.events[0].Outcome,
			"status %d should map to %s", tt.status, tt.outcome)
	}
}

func TestAuditMiddleware_AnonymousWithoutAccessInfo(t *testing.T) {
	// Audit without access middleware in front still produces an event.
	logger := &recordingAuditLogger{}
	router := gin.New()
	router.Use(AuditMiddleware(logger))
	router.GET("/v1/manifest", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/manifest", nil))

	require.Len(t, logger.events, 1)
	assert.Equal(t, "anonymous", logger.events[0].UserID)
}

func TestAuditMiddleware_SinkFailureDoesNotFailRequest(t *testing.T) {
	logger := &recordingAuditLogger{err: errors.New("sink unavailable")}
	router := auditTestRouter(logger)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/manifest", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditMiddleware_UnmatchedRoute(t *testing.T) {
	logger := &recordingAuditLogger{}
	router := gin.New()
	router.Use(AuditMiddleware(logger))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/no/such/route", nil))

	require.Len(t, logger.events, 1)
	assert.Equal(t, "unknown", logger.events[0].ResourceType)
	assert.Equal(t, "failure", logger.events[0].Outcome)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestAuditEventType(t *testing.T) {
	assert.Equal(t, "data.read", auditEventType(http.MethodGet))
	assert.Equal(t, "data.read", auditEventType(http.MethodHead))
	assert.Equal(t, "data.write", auditEventType(http.MethodPost))
	assert.Equal(t, "data.write", auditEventType(http.MethodPut))
	assert.Equal(t, "data.delete", auditEventType(http.MethodDelete))
}

func TestAuditAction(t *testing.T) {
	assert.Equal(t, "read", auditAction(http.MethodGet))
	assert.Equal(t, "create", auditAction(http.MethodPost))
	assert.Equal(t, "update", auditAction(http.MethodPut))
	assert.Equal(t, "update", auditAction(http.MethodPatch))
	assert.Equal(t, "delete", auditAction(http.MethodDelete))
	assert.Equal(t, "options", auditAction(http.MethodOptions))
}

func TestAuditResourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "unknown"},
		{"/v1/manifest", "manifest"},
		{"/v1/resolve", "resolution"},
		{"/v1/results/lookup", "result"},
		{"/v1/sessions", "session"},
		{"/v1/sessions/:sessionId/link", "session"},
		{"/v1/sessions/:sessionId/ws", "session"},
		{"/v1/sessions/:sessionId/columns", "column"},
		{"/v1/sessions/:sessionId/columns/:columnId/events", "column"},
		{"/health", "service"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, auditResourceType(tt.path), "path %q", tt.path)
	}
}
