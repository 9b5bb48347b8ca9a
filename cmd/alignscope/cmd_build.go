// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/pkg/ux"
	"github.com/AleutianAI/AlignScope/services/catalog/builder"
)

// =============================================================================
// Catalog Build Command
// =============================================================================

// runBuild walks an experiments directory and writes a browsable catalog.
//
// # Description
//
// Wires build flags into builder.Options, runs the build under a
// spinner, and renders the end-of-build report in the current
// personality. Per-run parse failures appear in the report as skipped
// runs; only walk, store, and output failures end the command.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: args[0] is the experiments directory to walk (required)
//
// # Outputs
//
// Prints the build report to stdout.
//
// # Limitations
//
//   - Exits with code 1 when the build fails outright
func runBuild(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: alignscope build [experiments directory]")
		os.Exit(1)
	}

	logger := newCommandLogger("build")
	defer logger.Close()

	opts := builder.Options{
		ExperimentsRoot: args[0],
		OutputDir:       buildOutputDir,
		Concurrency:     buildConcurrency,
		Logger:          logger,
	}

	var report *builder.Report
	err := ux.WithSpinner(fmt.Sprintf("Building catalog from %s", args[0]), func() error {
		var buildErr error
		report, buildErr = builder.Build(context.Background(), opts)
		return buildErr
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}

	ux.RenderBuildSummary(&ux.BuildSummary{
		ManifestPath: report.ManifestPath,
		StorePath:    report.StorePath,
		Experiments:  report.Experiments,
		Scenarios:    report.Scenarios,
		Records:      report.Records,
		SkippedRuns:  report.SkippedRuns,
		Elapsed:      report.Elapsed,
	})

	ux.KeyValue("ADM types", joinOrNone(report.ADMTypes))
	ux.KeyValue("LLM backbones", joinOrNone(report.LLMBackbones))
	ux.KeyValue("KDMA names", joinOrNone(report.KDMANames))
}

// joinOrNone renders a parameter axis for the build report.
func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

// newCommandLogger builds the per-command logger from the shared
// --log-level and --log-dir flags.
func newCommandLogger(service string) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		LogDir:  logDir,
		Service: service,
		Quiet:   logQuiet || ux.GetPersonality().Level == ux.PersonalityMachine,
	})
}
