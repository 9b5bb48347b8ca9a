// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"testing"
	"time"
)

func testManifest() *Manifest {
	return &Manifest{
		Version:     ManifestVersion,
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Experiments: map[string]ManifestExperiment{
			"greedy_no_llm": {
				ADMType:     "greedy",
				LLMBackbone: "no_llm",
				KDMAValues:  []KDMAValue{},
				Scenarios: map[string]ManifestScenario{
					"S2": {Scenes: []ManifestScene{
						{SceneID: "0", ResultRef: "greedy_no_llm/S2/0", TimingS: 0.4},
					}},
					"S1": {Scenes: []ManifestScene{
						{SceneID: "0", ResultRef: "greedy_no_llm/S1/0", TimingS: 0.2},
						{SceneID: "1", ResultRef: "greedy_no_llm/S1/1", TimingS: 0.3},
					}},
				},
			},
			"aligned_gpt_merit-0.5": {
				ADMType:     "aligned",
				LLMBackbone: "gpt",
				KDMAValues:  []KDMAValue{{Name: "merit", Value: 0.5}},
				Scenarios: map[string]ManifestScenario{
					"S1": {Scenes: []ManifestScene{
						{SceneID: "0", ResultRef: "aligned_gpt_merit-0.5/S1/0", TimingS: 1.1},
					}},
				},
			},
		},
	}
}

func TestManifest_ExperimentKeys_Sorted(t *testing.T) {
	m := testManifest()
	keys := m.ExperimentKeys()
	if len(keys) != 2 || keys[0] != "aligned_gpt_merit-0.5" || keys[1] != "greedy_no_llm" {
		t.Errorf("ExperimentKeys() = %v", keys)
	}
}

func TestManifest_Records_CanonicalOrder(t *testing.T) {
	m := testManifest()
	records := m.Records()
	if len(records) != 4 {
		t.Fatalf("Records() returned %d records, want 4", len(records))
	}

	// Sorted experiment keys first, then sorted scenario ids, then
	// scene order.
	wantRefs := []string{
		"aligned_gpt_merit-0.5/S1/0",
		"greedy_no_llm/S1/0",
		"greedy_no_llm/S1/1",
		"greedy_no_llm/S2/0",
	}
	for i, want := range wantRefs {
		if records[i].ResultRef != want {
			t.Errorf("records[%d].ResultRef = %q, want %q", i, records[i].ResultRef, want)
		}
	}

	if records[0].ADMType != "aligned" || records[0].LLMBackbone != "gpt" {
		t.Errorf("record 0 config = %s/%s", records[0].ADMType, records[0].LLMBackbone)
	}
	if !records[0].KDMA.Equal(KDMASet{"merit": 0.5}) {
		t.Errorf("record 0 kdma = %v", records[0].KDMA)
	}
	if !records[1].KDMA.Equal(KDMASet{}) {
		t.Errorf("record 1 kdma = %v, want empty set", records[1].KDMA)
	}
	if records[2].Scene != "1" {
		t.Errorf("records[2].Scene = %q, want 1", records[2].Scene)
	}
	if records[3].TimingS != 0.4 {
		t.Errorf("records[3].TimingS = %v, want 0.4", records[3].TimingS)
	}
}

func TestManifest_RecomputeMetadata(t *testing.T) {
	m := testManifest()
	m.RecomputeMetadata()

	if m.Metadata.TotalExperiments != 2 {
		t.Errorf("TotalExperiments = %d, want 2", m.Metadata.TotalExperiments)
	}
	if m.Metadata.TotalRecords != 4 {
		t.Errorf("TotalRecords = %d, want 4", m.Metadata.TotalRecords)
	}
	if len(m.Metadata.ADMTypes) != 2 || m.Metadata.ADMTypes[0] != "aligned" {
		t.Errorf("ADMTypes = %v", m.Metadata.ADMTypes)
	}
	if len(m.Metadata.KDMANames) != 1 || m.Metadata.KDMANames[0] != "merit" {
		t.Errorf("KDMANames = %v", m.Metadata.KDMANames)
	}
}

func TestManifest_JSONRoundTrip(t *testing.T) {
	m := testManifest()
	m.RecomputeMetadata()

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Manifest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Version != ManifestVersion {
		t.Errorf("version = %d, want %d", back.Version, ManifestVersion)
	}
	if len(back.Records()) != 4 {
		t.Errorf("round-tripped manifest has %d records, want 4", len(back.Records()))
	}
	if !back.GeneratedAt.Equal(m.GeneratedAt) {
		t.Errorf("generated_at = %v, want %v", back.GeneratedAt, m.GeneratedAt)
	}
}
