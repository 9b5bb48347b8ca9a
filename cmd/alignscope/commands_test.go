// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// These are unit tests that don't require a built catalog.
// Run with: go test ./cmd/alignscope/...

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// TestCommandTree verifies the root command exposes the three catalog
// commands.
func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "serve", "inspect", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

// TestInspectSummary verifies the --json shape carries sorted experiment
// keys and the manifest metadata.
func TestInspectSummary(t *testing.T) {
	m := &datatypes.Manifest{
		Version: datatypes.ManifestVersion,
		Experiments: map[string]datatypes.ManifestExperiment{
			"b_greedy_none": {},
			"a_aligned_gpt": {},
		},
		Metadata: datatypes.ManifestMetadata{TotalExperiments: 2, TotalRecords: 3},
	}

	s := inspectSummary("dist", m)
	assert.Equal(t, "dist", s.Catalog)
	assert.Equal(t, []string{"a_aligned_gpt", "b_greedy_none"}, s.Experiments)
	assert.Equal(t, 2, s.Metadata.TotalExperiments)
	assert.Equal(t, 3, s.Metadata.TotalRecords)
}

// TestServeConfig verifies flag values flow into the service config.
func TestServeConfig(t *testing.T) {
	serveAddr = ":9191"
	serveDataDir = "/tmp/catalog"
	serveUIDir = "ui"
	serveWatch = true
	sessionTTL = 5 * time.Minute
	maxSessions = 7
	debounceWindow = 250 * time.Millisecond

	logger := logging.New(logging.Config{Quiet: true})
	defer logger.Close()

	cfg := serveConfig(logger)
	assert.Equal(t, ":9191", cfg.Addr)
	assert.Equal(t, "/tmp/catalog", cfg.DataDir)
	assert.Equal(t, "ui", cfg.UIDir)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 7, cfg.MaxSessions)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow)
	assert.Same(t, logger, cfg.Logger)
}

// TestJoinOrNone verifies axis rendering for empty and populated lists.
func TestJoinOrNone(t *testing.T) {
	assert.Equal(t, "(none)", joinOrNone(nil))
	assert.Equal(t, "merit", joinOrNone([]string{"merit"}))
	assert.Equal(t, "gpt, none", joinOrNone([]string{"gpt", "none"}))
}

// TestExperimentRows verifies rows are sorted by key with scene totals
// and a placeholder for missing variants.
func TestExperimentRows(t *testing.T) {
	rows := experimentRows(map[string]datatypes.ManifestExperiment{
		"b_greedy_none": {
			ADMType:     "greedy",
			LLMBackbone: "none",
			Scenarios: map[string]datatypes.ManifestScenario{
				"s1": {Scenes: []datatypes.ManifestScene{{SceneID: "0"}, {SceneID: "1"}}},
			},
		},
		"a_aligned_gpt": {
			ADMType:     "aligned",
			LLMBackbone: "gpt",
			RunVariant:  "rerun",
			Scenarios: map[string]datatypes.ManifestScenario{
				"s1": {Scenes: []datatypes.ManifestScene{{SceneID: "0"}}},
				"s2": {Scenes: []datatypes.ManifestScene{{SceneID: "0"}}},
			},
		},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a_aligned_gpt", "aligned", "gpt", "rerun", "2", "2"}, rows[0])
	assert.Equal(t, []string{"b_greedy_none", "greedy", "none", "-", "1", "2"}, rows[1])
}
