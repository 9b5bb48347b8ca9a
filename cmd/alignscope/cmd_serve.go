// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/pkg/ux"
	"github.com/AleutianAI/AlignScope/services/catalog"
)

// =============================================================================
// Catalog Serve Command
// =============================================================================

// runServe starts the catalog browse server and blocks until shutdown.
//
// # Description
//
// Maps serve flags into a catalog.Config, constructs the service (which
// loads the manifest, opens the result store, and starts the session
// janitor), and runs it until SIGINT/SIGTERM.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: Command arguments (unused)
//
// # Limitations
//
//   - Exits with code 1 when the catalog cannot be loaded or the
//     server fails
func runServe(cmd *cobra.Command, args []string) {
	logger := newCommandLogger("browse")
	defer logger.Close()

	svc, err := catalog.New(serveConfig(logger), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start catalog service: %v\n", err)
		os.Exit(1)
	}

	ux.Title("AlignScope")
	ux.KeyValue("Listening", serveAddr)
	ux.KeyValue("Catalog", serveDataDir)
	if serveUIDir != "" {
		ux.KeyValue("UI", serveUIDir)
	}
	if serveWatch {
		ux.Info("Manifest hot reload enabled")
	}

	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// serveConfig maps the serve command's flags onto the service config.
func serveConfig(logger *logging.Logger) catalog.Config {
	return catalog.Config{
		Addr:           serveAddr,
		DataDir:        serveDataDir,
		UIDir:          serveUIDir,
		Watch:          serveWatch,
		EnableTracing:  serveTracing,
		OTelEndpoint:   serveOTel,
		GinMode:        serveGinMode,
		SessionTTL:     sessionTTL,
		MaxSessions:    maxSessions,
		DebounceWindow: debounceWindow,
		Logger:         logger,
	}
}
