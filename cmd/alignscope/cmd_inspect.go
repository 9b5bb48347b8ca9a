// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AlignScope/pkg/ux"
	"github.com/AleutianAI/AlignScope/services/catalog/builder"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
	"github.com/AleutianAI/AlignScope/services/catalog/storage"
)

// =============================================================================
// Catalog Inspect Command
// =============================================================================

// runInspect summarizes a built catalog without serving it.
//
// # Description
//
// Loads the manifest, renders the catalog metadata and a per-experiment
// table, and cross-checks the manifest's record count against the
// payloads actually present in the results store. A count mismatch is a
// warning, not a failure: the catalog still serves, but some columns
// will report missing results.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: args[0] is the catalog directory (default "dist")
//
// # Limitations
//
//   - Opens the results store directly; run it against a catalog that
//     is not currently being served
func runInspect(cmd *cobra.Command, args []string) {
	dataDir := "dist"
	if len(args) > 0 {
		dataDir = args[0]
	}

	ix, manifest, err := index.LoadFromFile(filepath.Join(dataDir, builder.ManifestFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load manifest: %v\n", err)
		os.Exit(1)
	}

	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(inspectSummary(dataDir, manifest)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode summary: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ux.Title("Catalog: " + dataDir)
	ux.KeyValue("Generated", manifest.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	ux.KeyValue("ADM types", joinOrNone(manifest.Metadata.ADMTypes))
	ux.KeyValue("LLM backbones", joinOrNone(manifest.Metadata.LLMBackbones))
	ux.KeyValue("KDMA names", joinOrNone(manifest.Metadata.KDMANames))

	fmt.Println(ux.Table(
		[]string{"EXPERIMENT", "ADM", "LLM", "VARIANT", "SCENARIOS", "SCENES"},
		experimentRows(manifest.Experiments),
	))

	stored, listed, err := storeCounts(dataDir)
	if err != nil {
		ux.Warning(fmt.Sprintf("Results store unreadable: %v", err))
	} else {
		checkStoreCounts(ix.Len(), stored)
		for _, ref := range listed {
			ux.FileStatus(ref, ux.IconBullet, "")
		}
	}

	ux.Summary(manifest.Metadata.TotalExperiments, manifest.Metadata.TotalRecords, 0)
}

// catalogSummary is the --json output shape.
type catalogSummary struct {
	Catalog     string                     `json:"catalog"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Metadata    datatypes.ManifestMetadata `json:"metadata"`
	Experiments []string                   `json:"experiments"`
}

// inspectSummary builds the scripting summary with sorted experiment keys.
func inspectSummary(dataDir string, m *datatypes.Manifest) catalogSummary {
	keys := make([]string, 0, len(m.Experiments))
	for key := range m.Experiments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return catalogSummary{
		Catalog:     dataDir,
		GeneratedAt: m.GeneratedAt,
		Metadata:    m.Metadata,
		Experiments: keys,
	}
}

// experimentRows flattens manifest experiments into sorted table rows.
func experimentRows(experiments map[string]datatypes.ManifestExperiment) [][]string {
	keys := make([]string, 0, len(experiments))
	for key := range experiments {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		exp := experiments[key]
		scenes := 0
		for _, sc := range exp.Scenarios {
			scenes += len(sc.Scenes)
		}
		variant := exp.RunVariant
		if variant == "" {
			variant = "-"
		}
		rows = append(rows, []string{
			key,
			exp.ADMType,
			exp.LLMBackbone,
			variant,
			strconv.Itoa(len(exp.Scenarios)),
			strconv.Itoa(scenes),
		})
	}
	return rows
}

// storeCounts opens the results store and returns the payload count and,
// when --refs is set, up to that many refs.
func storeCounts(dataDir string) (int, []string, error) {
	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(dataDir, builder.StoreDirName)
	cfg.GCInterval = 0 // read-only pass, no GC loop

	store, err := storage.Open(cfg)
	if err != nil {
		return 0, nil, err
	}
	defer store.Close()

	ctx := context.Background()
	count, err := store.CountResults(ctx)
	if err != nil {
		return 0, nil, err
	}

	var refs []string
	if inspectRefs > 0 {
		refs, err = store.ListRefs(ctx, "", inspectRefs)
		if err != nil {
			return count, nil, err
		}
	}
	return count, refs, nil
}

// checkStoreCounts reports manifest/store drift.
func checkStoreCounts(manifestRecords, storedPayloads int) {
	if manifestRecords == storedPayloads {
		ux.Success(fmt.Sprintf("%d stored payloads match the manifest", storedPayloads))
		return
	}
	ux.Warning(fmt.Sprintf(
		"manifest lists %d records but the store holds %d payloads; rebuild the catalog",
		manifestRecords, storedPayloads))
}
