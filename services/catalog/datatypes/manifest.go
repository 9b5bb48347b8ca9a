// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the manifest schema: the typed flattened catalog the
// builder writes and the browse service loads. One manifest describes
// every fetchable experiment run in a results tree.
package datatypes

import (
	"sort"
	"strings"
	"time"
)

// ManifestVersion is the current manifest schema version. Decoders reject
// manifests written by an incompatible builder.
const ManifestVersion = 1

// Manifest is the flattened catalog of experiment runs.
type Manifest struct {
	// Version is the schema version, always ManifestVersion for
	// manifests this build writes.
	Version int `json:"version"`

	// GeneratedAt records when the builder produced the manifest.
	GeneratedAt time.Time `json:"generated_at"`

	// Experiments maps experiment key to its runs. Keys follow the
	// "{adm}_{llm}_{kdma parts}" convention with an optional run
	// variant suffix.
	Experiments map[string]ManifestExperiment `json:"experiments"`

	// Metadata summarizes the catalog for display and quick checks.
	Metadata ManifestMetadata `json:"metadata"`
}

// ManifestExperiment is one experiment configuration and the scenarios it
// was run against.
type ManifestExperiment struct {
	ADMType     string                      `json:"adm_type"`
	LLMBackbone string                      `json:"llm_backbone"`
	RunVariant  string                      `json:"run_variant,omitempty"`
	KDMAValues  []KDMAValue                 `json:"kdma_values"`
	Scenarios   map[string]ManifestScenario `json:"scenarios"`
}

// ManifestScenario holds the ordered scenes recorded for one scenario.
type ManifestScenario struct {
	Scenes []ManifestScene `json:"scenes"`
}

// ManifestScene is one fetchable decision instance.
type ManifestScene struct {
	// SceneID is the zero-based index of the scene within its
	// scenario, rendered as a string.
	SceneID string `json:"scene_id"`

	// ResultRef keys the stored result payload
	// ("{experiment key}/{scenario}/{scene}").
	ResultRef string `json:"result_ref"`

	// TimingS is the decision time for this scene in seconds.
	TimingS float64 `json:"timing_s"`
}

// ManifestMetadata summarizes a manifest.
type ManifestMetadata struct {
	TotalExperiments int      `json:"total_experiments"`
	TotalRecords     int      `json:"total_records"`
	ADMTypes         []string `json:"adm_types"`
	LLMBackbones     []string `json:"llm_backbones"`
	KDMANames        []string `json:"kdma_names"`
}

// ExperimentKey composes the manifest key for one experiment
// configuration: "{adm}_{llm}", then the canonical KDMA parts, then the
// run variant, each joined by "_" and omitted when empty.
func ExperimentKey(admType, llmBackbone string, kdma KDMASet, runVariant string) string {
	parts := []string{admType, llmBackbone}
	if canonical := kdma.Canonical(); canonical != "" {
		parts = append(parts, canonical)
	}
	if runVariant != "" {
		parts = append(parts, runVariant)
	}
	return strings.Join(parts, "_")
}

// ExperimentKeys returns the manifest's experiment keys in sorted order.
// Sorted key order is the catalog's canonical insertion order; everything
// that flattens a manifest must iterate keys this way so that option
// lists and repair defaults are stable across loads.
func (m *Manifest) ExperimentKeys() []string {
	keys := make([]string, 0, len(m.Experiments))
	for key := range m.Experiments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ScenarioIDs returns the experiment's scenario identifiers in sorted
// order, matching the canonical flattening order.
func (e ManifestExperiment) ScenarioIDs() []string {
	ids := make([]string, 0, len(e.Scenarios))
	for id := range e.Scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records flattens the manifest into catalog records in canonical order:
// sorted experiment keys, then sorted scenario ids, then scene order.
func (m *Manifest) Records() []Record {
	var records []Record
	for _, key := range m.ExperimentKeys() {
		exp := m.Experiments[key]
		kdma := KDMASetFromValues(exp.KDMAValues)
		for _, scenarioID := range exp.ScenarioIDs() {
			for _, scene := range exp.Scenarios[scenarioID].Scenes {
				records = append(records, Record{
					Scenario:    scenarioID,
					Scene:       scene.SceneID,
					ADMType:     exp.ADMType,
					LLMBackbone: exp.LLMBackbone,
					RunVariant:  exp.RunVariant,
					KDMA:        kdma,
					ResultRef:   scene.ResultRef,
					TimingS:     scene.TimingS,
				})
			}
		}
	}
	return records
}

// RecomputeMetadata rebuilds the summary block from the experiment map.
// The builder calls this once after the final conflict pass.
func (m *Manifest) RecomputeMetadata() {
	admSet := map[string]struct{}{}
	llmSet := map[string]struct{}{}
	kdmaSet := map[string]struct{}{}
	records := 0
	for _, exp := range m.Experiments {
		admSet[exp.ADMType] = struct{}{}
		llmSet[exp.LLMBackbone] = struct{}{}
		for _, kv := range exp.KDMAValues {
			kdmaSet[kv.Name] = struct{}{}
		}
		for _, sc := range exp.Scenarios {
			records += len(sc.Scenes)
		}
	}
	m.Metadata = ManifestMetadata{
		TotalExperiments: len(m.Experiments),
		TotalRecords:     records,
		ADMTypes:         sortedKeys(admSet),
		LLMBackbones:     sortedKeys(llmSet),
		KDMANames:        sortedKeys(kdmaSet),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
