// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the catalog service.
//
// This package contains middleware for viewer identity and request
// auditing. It integrates with the extensions package to support
// enterprise features.
//
// # Access Flow
//
// The access middleware extracts a bearer token from the request,
// resolves it to an identity using the configured AccessProvider, and
// stores the resulting AccessInfo in the Gin context for downstream
// handlers and the audit middleware.
//
//	Request
//	   │
//	   ▼
//	AccessMiddleware
//	   │
//	   ├─► Extract token ("Authorization: Bearer <token>",
//	   │   falling back to the access_token query parameter)
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AccessInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAccessInfo)
//
// The query parameter fallback exists for the websocket endpoint:
// browser WebSocket clients cannot set request headers, so the token
// rides the URL instead.
//
// # Open Source Behavior
//
// When using NopAccessProvider (default), all requests resolve to
// "local-viewer" with admin privileges. The CLI-launched service works
// without any identity infrastructure.
//
// # Enterprise Behavior
//
// Enterprise implementations validate tokens against identity providers
// (Okta, Auth0, Azure AD) and return real viewer identities.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AlignScope/pkg/extensions"
)

// accessInfoKey is the context key for storing AccessInfo.
// Using a package-specific key prevents collisions with other context
// values.
const accessInfoKey = "alignscope_access_info"

// SetAccessInfo stores the viewer identity in the Gin context.
//
// Called by AccessMiddleware after successful validation. The stored
// AccessInfo can be retrieved by handlers via GetAccessInfo. Only valid
// for the current request; overwrites any previously set identity.
func SetAccessInfo(c *gin.Context, info *extensions.AccessInfo) {
	c.Set(accessInfoKey, info)
}

// GetAccessInfo retrieves the viewer identity from the Gin context.
//
// Returns nil if no AccessInfo is present (the request never passed
// through AccessMiddleware) or if the stored value has the wrong type.
//
// Example:
//
//	func handle(c *gin.Context) {
//	    info := middleware.GetAccessInfo(c)
//	    if info.HasRole("auditor") { ... }
//	}
func GetAccessInfo(c *gin.Context) *extensions.AccessInfo {
	if info, exists := c.Get(accessInfoKey); exists {
		if accessInfo, ok := info.(*extensions.AccessInfo); ok {
			return accessInfo
		}
	}
	return nil
}

// AccessMiddleware creates a Gin middleware that resolves viewer
// identity.
//
// # Description
//
// Extracts the bearer token from the request, validates it using the
// provided AccessProvider, and stores the resulting AccessInfo in the
// context. Requests the provider rejects are aborted with 401; the
// response body distinguishes denied tokens from provider failures.
//
// # Inputs
//
//   - provider: AccessProvider to validate tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AccessMiddleware(opts.AccessProvider))
//
// # Limitations
//
//   - Only supports bearer tokens (header or access_token query param)
//   - Does not cache validation results (validates every request)
//
// # Assumptions
//
//   - Provider is non-nil and safe for concurrent calls
//   - ErrAccessDenied (or wrapped) marks denials; other errors are
//     provider failures
func AccessMiddleware(provider extensions.AccessProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrAccessDenied) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "access denied",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "access validation failed",
			})
			return
		}

		SetAccessInfo(c, info)
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header,
// falling back to the access_token query parameter.
//
// Returns empty string if neither is present. The "Bearer" prefix is
// case-insensitive per RFC 7235. Websocket clients use the query
// parameter form since browsers cannot set headers on WebSocket
// handshakes.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	return strings.TrimSpace(c.Query("access_token"))
}
