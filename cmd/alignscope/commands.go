// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AlignScope/pkg/ux"
)

// --- Global Command Variables ---
var (
	// Build flags
	buildOutputDir   string
	buildConcurrency int

	// Serve flags
	serveAddr      string
	serveDataDir   string
	serveUIDir     string
	serveWatch     bool
	serveTracing   bool
	serveOTel      string
	serveGinMode   string
	sessionTTL     time.Duration
	maxSessions    int
	debounceWindow time.Duration

	// Inspect flags
	inspectRefs int
	inspectJSON bool

	// Shared flags
	logLevel         string
	logDir           string
	logQuiet         bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "alignscope",
		Short: "A cli to build and browse catalogs of alignment experiment runs",
		Long: `AlignScope turns directories of ADM experiment output into a
				browsable catalog: build walks the experiment runs and writes a
				manifest plus a result store, serve puts a comparison UI and API
				in front of them, and inspect summarizes a built catalog.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Catalog Build ---
	buildCmd = &cobra.Command{
		Use:   "build [experiments directory]",
		Short: "Walk an experiments directory and build a browsable catalog",
		Long: `build discovers experiment run directories (a run needs a hydra
				config plus input/output, scores, and timing files), parses them
				concurrently, and writes manifest.json and the results store
				into the output directory. Runs that fail to parse are skipped
				and reported, not fatal.`,
		Run: runBuild, // Defined in cmd_build.go
	}

	// --- Catalog Serve ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a built catalog for browsing and comparison",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Catalog Inspect ---
	inspectCmd = &cobra.Command{
		Use:   "inspect [catalog directory]",
		Short: "Summarize a built catalog without serving it",
		Run:   runInspect, // Defined in cmd_inspect.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the alignscope version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("alignscope %s\n", version)
		},
	}
)

// version is overridden at build time via
// -ldflags "-X main.version=...".
var version = "dev"

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Minimum log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&logQuiet, "quiet", false,
		"Suppress log output on stderr")

	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOutputDir, "output", "o", "dist",
		"Output directory for manifest.json and the results store")
	buildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 0,
		"Parallel run parsers (default: number of CPUs)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVarP(&serveDataDir, "data", "d", "dist",
		"Catalog directory produced by build")
	serveCmd.Flags().StringVar(&serveUIDir, "ui", "",
		"Directory of static UI assets served under /ui (disabled when empty)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false,
		"Hot-reload the manifest when build rewrites it")
	serveCmd.Flags().BoolVar(&serveTracing, "tracing", false,
		"Export OpenTelemetry spans to a collector")
	serveCmd.Flags().StringVar(&serveOTel, "otel-endpoint", "",
		"OTLP collector endpoint (default: OTEL_EXPORTER_OTLP_ENDPOINT, then localhost:4317)")
	serveCmd.Flags().StringVar(&serveGinMode, "gin-mode", "release",
		"Gin framework mode: debug, release, or test")
	serveCmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*time.Minute,
		"Idle time before a viewer session is closed")
	serveCmd.Flags().IntVar(&maxSessions, "max-sessions", 256,
		"Maximum concurrent viewer sessions")
	serveCmd.Flags().DurationVar(&debounceWindow, "debounce", 500*time.Millisecond,
		"How long slider edits accumulate before one resolution fires")

	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().IntVar(&inspectRefs, "refs", 0,
		"Also list up to N stored result refs")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false,
		"Emit the manifest summary as JSON for scripting")

	rootCmd.AddCommand(versionCmd)
}
