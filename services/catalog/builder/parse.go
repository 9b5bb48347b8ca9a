// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AlignScope/pkg/validation"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// skipMarker excludes whole subtrees from the walk, case-insensitive.
const skipMarker = "OUTDATED"

// requiredFiles is what makes a directory an experiment run. All four
// must exist; scores gates completeness but is never read.
var requiredFiles = [4]string{
	filepath.Join(".hydra", "config.yaml"),
	"input_output.json",
	"scores.json",
	"timing.json",
}

// hydraConfig is the slice of a run's .hydra/config.yaml the catalog
// needs. Hydra configs carry far more; everything else is ignored.
type hydraConfig struct {
	ADM struct {
		Name                      string `yaml:"name"`
		StructuredInferenceEngine *struct {
			ModelName string `yaml:"model_name"`
		} `yaml:"structured_inference_engine"`
	} `yaml:"adm"`
	AlignmentTarget struct {
		KDMAValues []struct {
			KDMA  string  `yaml:"kdma"`
			Value float64 `yaml:"value"`
		} `yaml:"kdma_values"`
	} `yaml:"alignment_target"`
}

// ioEntry is one decision instance from input_output.json.
type ioEntry struct {
	Input struct {
		ScenarioID string     `json:"scenario_id"`
		State      string     `json:"state"`
		Choices    []ioChoice `json:"choices"`
	} `json:"input"`
	Output struct {
		Choice        json.RawMessage `json:"choice"`
		Justification string          `json:"justification"`
	} `json:"output"`
}

type ioChoice struct {
	ActionID        string             `json:"action_id"`
	Unstructured    string             `json:"unstructured"`
	KDMAAssociation map[string]float64 `json:"kdma_association"`
}

// timingReport mirrors timing.json. Entries align by index with the
// run's input_output entries.
type timingReport struct {
	Scenarios []struct {
		AvgTimeS float64 `json:"avg_time_s"`
	} `json:"scenarios"`
}

// run is one parsed experiment directory.
type run struct {
	dir string
	rel string

	admType     string
	llmBackbone string
	kdma        datatypes.KDMASet
	runVariant  string

	entries []ioEntry
	timings timingReport
}

func (r *run) baseKey() string {
	return datatypes.ExperimentKey(r.admType, r.llmBackbone, r.kdma, "")
}

func (r *run) key() string {
	return datatypes.ExperimentKey(r.admType, r.llmBackbone, r.kdma, r.runVariant)
}

// discoverRuns walks root and returns every directory holding the
// required files, in lexical walk order. That order is what breaks ties
// later, so it must stay deterministic.
func discoverRuns(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if strings.Contains(strings.ToUpper(d.Name()), skipMarker) {
			return filepath.SkipDir
		}
		if hasRequiredFiles(path) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return dirs, nil
}

func hasRequiredFiles(dir string) bool {
	for _, rel := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			return false
		}
	}
	return true
}

// parseRun loads one experiment directory into memory.
func parseRun(root, dir string) (*run, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		rel = dir
	}

	rawCfg, err := os.ReadFile(filepath.Join(dir, requiredFiles[0]))
	if err != nil {
		return nil, fmt.Errorf("reading hydra config: %w", err)
	}
	var cfg hydraConfig
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		return nil, fmt.Errorf("parsing hydra config: %w", err)
	}

	r := &run{
		dir:         dir,
		rel:         filepath.ToSlash(rel),
		admType:     cfg.ADM.Name,
		llmBackbone: "no_llm",
		kdma:        datatypes.KDMASet{},
	}
	if r.admType == "" {
		r.admType = "unknown_adm"
	}
	if engine := cfg.ADM.StructuredInferenceEngine; engine != nil && engine.ModelName != "" {
		r.llmBackbone = engine.ModelName
	}
	// Names flow from experiment output into experiment keys and store
	// refs; sanitize them at this boundary.
	r.admType = validation.SanitizeRefSegment(r.admType)
	r.llmBackbone = validation.SanitizeRefSegment(r.llmBackbone)
	for _, kv := range cfg.AlignmentTarget.KDMAValues {
		if kv.KDMA == "" {
			continue
		}
		r.kdma[validation.SanitizeRefSegment(kv.KDMA)] = kv.Value
	}

	if err := readJSONFile(filepath.Join(dir, "input_output.json"), &r.entries); err != nil {
		return nil, err
	}
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("input_output.json: no decision entries")
	}
	if err := readJSONFile(filepath.Join(dir, "timing.json"), &r.timings); err != nil {
		return nil, err
	}
	return r, nil
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// runVariantFromPath derives a variant label from a run's relative path
// when two runs collide on the same base key: a "_rerun" path component
// wins "rerun", then "original", then "_test"; otherwise the run's parent
// directory name with any trailing "_rerun" stripped.
func runVariantFromPath(rel string) string {
	parts := strings.Split(rel, "/")
	for _, part := range parts {
		switch {
		case strings.Contains(part, "_rerun"):
			return "rerun"
		case strings.Contains(part, "original"):
			return "original"
		case strings.Contains(part, "_test"):
			return "test"
		}
	}
	if len(parts) >= 2 {
		return strings.TrimSuffix(parts[len(parts)-2], "_rerun")
	}
	return ""
}

// chosenIndex maps a run's recorded choice onto its index in the choice
// list. The field appears both as an action id and as a bare index in
// the wild; anything unmatched is -1.
func chosenIndex(raw json.RawMessage, choices []ioChoice) int {
	if len(raw) == 0 {
		return -1
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		for i, c := range choices {
			if c.ActionID == id {
				return i
			}
		}
		return -1
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err == nil && idx >= 0 && idx < len(choices) {
		return idx
	}
	return -1
}
