// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrAccessDenied is returned when a request token is invalid or the
// viewer is not allowed to use the catalog service.
//
// Implementations should wrap this sentinel so callers can distinguish
// access failures from provider failures:
//
//	if tokenExpired {
//	    return nil, fmt.Errorf("token expired: %w", extensions.ErrAccessDenied)
//	}
//
// The catalog middleware maps ErrAccessDenied (and anything wrapping it)
// to HTTP 401.
var ErrAccessDenied = errors.New("access denied")

// AccessInfo describes the viewer behind a request.
//
// For the open source single-user deployment this is always the local
// viewer. Enterprise providers populate it from their identity system.
//
// Example:
//
//	info := &AccessInfo{
//	    UserID: "user-123",
//	    Roles:  []string{"analyst", "viewer"},
//	}
type AccessInfo struct {
	// UserID is the unique identifier for the viewer.
	// This is the only required field and must never be empty.
	UserID string

	// Roles contains the viewer's role memberships.
	// Common roles: "admin", "analyst", "viewer", "auditor"
	Roles []string
}

// HasRole checks if the viewer has a specific role.
//
// Returns false for a nil AccessInfo, so callers can chain without a
// nil check:
//
//	if middleware.GetAccessInfo(c).HasRole("auditor") { ... }
func (info *AccessInfo) HasRole(role string) bool {
	if info == nil {
		return false
	}
	for _, r := range info.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AccessProvider resolves request tokens to viewer identities.
//
// Implementations must be safe for concurrent use by multiple
// goroutines. Validate is called on every API request, so it should be
// fast; cache upstream lookups where the identity system allows it.
//
// # Open Source Behavior
//
// The default NopAccessProvider accepts every request (including ones
// with no token at all) and returns the local viewer. This enables the
// CLI-launched service to function without any identity infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions validate tokens against identity providers
// (Okta, Auth0, Azure AD) and return real viewer identities:
//
//	type OktaAccessProvider struct {
//	    verifier *okta.JWTVerifier
//	}
//
//	func (p *OktaAccessProvider) Validate(ctx context.Context, token string) (*AccessInfo, error) {
//	    claims, err := p.verifier.Verify(ctx, token)
//	    if err != nil {
//	        return nil, fmt.Errorf("okta validation failed: %w", ErrAccessDenied)
//	    }
//	    return &AccessInfo{UserID: claims.Subject, Roles: claims.Roles}, nil
//	}
type AccessProvider interface {
	// Validate checks a bearer token and returns the viewer identity.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - token: The bearer token, or "" when the request carried none
	//
	// Returns:
	//   - *AccessInfo: The viewer identity on success
	//   - error: ErrAccessDenied (or wrapped) if invalid, other errors
	//     for provider failures
	Validate(ctx context.Context, token string) (*AccessInfo, error)
}

// NopAccessProvider is the default access provider for open source.
//
// It accepts every request and returns the local viewer with admin
// privileges. This is intentional for local single-user deployments.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	provider := &NopAccessProvider{}
//	info, err := provider.Validate(ctx, "any-token")
//	// info.UserID == "local-viewer"
//	// info.Roles == []string{"admin"}
//	// err == nil
type NopAccessProvider struct{}

// Validate always returns the local viewer with admin privileges.
//
// The token parameter is ignored - any value (including empty string)
// results in a valid identity.
func (p *NopAccessProvider) Validate(_ context.Context, _ string) (*AccessInfo, error) {
	return &AccessInfo{
		UserID: "local-viewer",
		Roles:  []string{"admin"},
	}, nil
}

// Compile-time interface compliance check.
var _ AccessProvider = (*NopAccessProvider)(nil)
