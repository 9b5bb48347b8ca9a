// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateRefSegment(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		wantErr bool
	}{
		// Valid segments
		{"simple", "scn_urban_1", false},
		{"single char", "0", false},
		{"mixed case", "DryRunADM", false},
		{"with dots", "merit-0.5", false},
		{"max length", strings.Repeat("a", 128), false},

		// Invalid segments
		{"empty", "", true},
		{"path separator", "a/b", true},
		{"dotdot", "..", true},
		{"leading dot", ".hidden", true},
		{"leading hyphen", "-flag", true},
		{"spaces", "scn 1", true},
		{"newline", "scn\n1", true},
		{"null byte", "scn\x001", true},
		{"too long", strings.Repeat("a", 129), true},
		{"unicode", "scénario", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRefSegment(tt.segment)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRefSegment(%q) error = %v, wantErr %v", tt.segment, err, tt.wantErr)
			}
		})
	}
}

func TestValidateExperimentKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"baseline", "pipeline_baseline_no_llm", false},
		{"with kdma", "aligned_gpt_affiliation-0.5_merit-0.3", false},
		{"with variant", "aligned_gpt_merit-0.5_rerun", false},
		{"empty", "", true},
		{"separator", "aligned/gpt", true},
		{"too long", strings.Repeat("k", 257), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExperimentKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExperimentKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateResultRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"canonical", "aligned_gpt_merit-0.5/scn_urban_1/0", false},
		{"baseline", "greedy_no_llm/unknown_scenario/12", false},
		{"empty", "", true},
		{"two segments", "key/scn", true},
		{"four segments", "key/scn/0/extra", true},
		{"empty segment", "key//0", true},
		{"traversal", "key/../0", true},
		{"too long", strings.Repeat("a", 500) + "/scn/0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResultRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResultRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeRefSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"passthrough", "scn_urban_1", "scn_urban_1"},
		{"spaces replaced", "urban triage 1", "urban_triage_1"},
		{"separator replaced", "a/b", "a_b"},
		{"trimmed", "  scn  ", "scn"},
		{"leading junk stripped", "..scn", "scn"},
		{"empty", "", "unknown"},
		{"only junk", "///", "unknown"},
		{"truncated", strings.Repeat("a", 200), strings.Repeat("a", 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeRefSegment(tt.in); got != tt.want {
				t.Errorf("SanitizeRefSegment(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got := SanitizeRefSegment(tt.in); ValidateRefSegment(got) != nil {
				t.Errorf("SanitizeRefSegment(%q) = %q does not validate", tt.in, got)
			}
		})
	}
}
