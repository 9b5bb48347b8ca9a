// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow AlignScope Enterprise
// to add capabilities without modifying the core AlignScope codebase.
// The open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// AlignScope is designed as a fully functional local utility that works
// offline without any external dependencies. A built catalog is browsed
// by a single user on their own machine. Enterprise deployments put the
// same browse service in front of a team, which is where identity and
// audit trails enter the picture. Those capabilities are implemented by
// providing concrete implementations of these interfaces and injecting
// them via ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - access.go: Request identity and access control (AccessProvider)
//   - audit.go: Compliance audit logging (AuditLogger)
//
// # Usage in AlignScope (Open Source)
//
// The open source version uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//	svc, err := catalog.New(cfg, &opts)
//
// # Usage in AlignScope Enterprise
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AccessProvider: enterprise.NewOktaProvider(config),
//	    AuditLogger:    enterprise.NewSplunkAuditor(config),
//	}
//	svc, err := catalog.New(cfg, &opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable enterprise features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is used or when services check for nil.
//
// Example:
//
//	// Open source: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Enterprise: inject implementations
//	opts := extensions.ServiceOptions{
//	    AccessProvider: oktaProvider,
//	    AuditLogger:    splunkAuditor,
//	}
type ServiceOptions struct {
	// AccessProvider resolves request tokens to viewer identities.
	// Default: NopAccessProvider (always returns the local viewer)
	AccessProvider AccessProvider

	// AuditLogger records security-relevant events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the open source version.
// All requests are allowed and no audit trail is kept.
//
// Returns:
//   - ServiceOptions with all fields set to no-op implementations
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AccessProvider: &NopAccessProvider{},
		AuditLogger:    &NopAuditLogger{},
	}
}

// WithAccess returns a copy of opts with the given AccessProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAccess(provider AccessProvider) ServiceOptions {
	opts.AccessProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
