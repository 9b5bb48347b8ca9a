// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package builder turns a tree of experiment run directories into the
catalog the browse service loads: a manifest describing every run plus
a results store holding one decision payload per scene.

# Build Pipeline

 1. Walk the experiments root for directories holding the four required
    files (.hydra/config.yaml, input_output.json, scores.json,
    timing.json). Subtrees marked OUTDATED are skipped.
 2. Parse runs in parallel. A run that fails to parse is reported and
    skipped; it never fails the build.
 3. Group runs by base key (ADM type, backbone, KDMA values). Singleton
    groups stay unvarianted; colliding groups take a run variant derived
    from each run's directory path.
 4. Flatten decision entries into scenes: entries group by scenario id,
    scene ids count from zero within each scenario, and timing aligns by
    entry index.
 5. Write manifest.json and the badger results store under the output
    directory.

Scores files gate run completeness only; their content is never read.
*/
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/pkg/validation"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/storage"
)

// ManifestFileName is the catalog file written under the output
// directory.
const ManifestFileName = "manifest.json"

// StoreDirName is the results store directory written under the output
// directory.
const StoreDirName = "results"

var (
	// ErrNoExperimentsRoot means Options.ExperimentsRoot was empty.
	ErrNoExperimentsRoot = errors.New("builder: experiments root not set")

	// ErrNoOutputDir means Options.OutputDir was empty.
	ErrNoOutputDir = errors.New("builder: output directory not set")
)

// Options configures one build.
type Options struct {
	// ExperimentsRoot is the directory walked for experiment runs.
	ExperimentsRoot string

	// OutputDir receives manifest.json and the results/ store.
	OutputDir string

	// Concurrency bounds parallel run parsing. Default: NumCPU.
	Concurrency int

	// Logger receives build progress. Default: logging.Default().
	Logger *logging.Logger
}

// Report summarizes one completed build.
type Report struct {
	Experiments  int
	Scenarios    int
	Records      int
	ADMTypes     []string
	LLMBackbones []string
	KDMANames    []string

	// SkippedRuns lists run directories that failed to parse, each with
	// its reason.
	SkippedRuns []string

	ManifestPath string
	StorePath    string
	Elapsed      time.Duration
}

// payload pairs a result ref with the decision it stores.
type payload struct {
	ref    string
	result *datatypes.DecisionResult
}

// Build walks opts.ExperimentsRoot and writes the catalog into
// opts.OutputDir. Per-run parse failures are collected in the report;
// only walk, store, and output failures abort the build.
func Build(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	if opts.ExperimentsRoot == "" {
		return nil, ErrNoExperimentsRoot
	}
	if opts.OutputDir == "" {
		return nil, ErrNoOutputDir
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	info, err := os.Stat(opts.ExperimentsRoot)
	if err != nil {
		return nil, fmt.Errorf("experiments root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("experiments root %s: not a directory", opts.ExperimentsRoot)
	}

	dirs, err := discoverRuns(opts.ExperimentsRoot)
	if err != nil {
		return nil, err
	}
	logger.Info("experiment walk complete", "root", opts.ExperimentsRoot, "runs", len(dirs))

	runs, skipped, err := parseRuns(ctx, opts, logger, dirs)
	if err != nil {
		return nil, err
	}
	assignRunVariants(runs)

	manifest, payloads := assemble(runs, logger)

	if err := os.MkdirAll(opts.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	storePath := filepath.Join(opts.OutputDir, StoreDirName)
	if err := writePayloads(ctx, storePath, payloads, logger); err != nil {
		return nil, err
	}

	manifest.RecomputeMetadata()
	manifestPath := filepath.Join(opts.OutputDir, ManifestFileName)
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, raw, 0644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	scenarioSet := map[string]struct{}{}
	for _, exp := range manifest.Experiments {
		for id := range exp.Scenarios {
			scenarioSet[id] = struct{}{}
		}
	}

	report := &Report{
		Experiments:  manifest.Metadata.TotalExperiments,
		Scenarios:    len(scenarioSet),
		Records:      manifest.Metadata.TotalRecords,
		ADMTypes:     manifest.Metadata.ADMTypes,
		LLMBackbones: manifest.Metadata.LLMBackbones,
		KDMANames:    manifest.Metadata.KDMANames,
		SkippedRuns:  skipped,
		ManifestPath: manifestPath,
		StorePath:    storePath,
		Elapsed:      time.Since(start),
	}
	logger.Info("catalog build complete",
		"experiments", report.Experiments,
		"records", report.Records,
		"skipped_runs", len(report.SkippedRuns),
		"elapsed", report.Elapsed.String(),
	)
	return report, nil
}

// parseRuns loads run directories in parallel, keeping walk order. Parse
// failures are non-fatal; only context cancellation aborts.
func parseRuns(ctx context.Context, opts Options, logger *logging.Logger, dirs []string) ([]*run, []string, error) {
	parsed := make([]*run, len(dirs))
	failures := make([]error, len(dirs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			r, err := parseRun(opts.ExperimentsRoot, dir)
			if err != nil {
				failures[i] = err
				return nil
			}
			parsed[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	runs := make([]*run, 0, len(dirs))
	var skipped []string
	for i, r := range parsed {
		if r != nil {
			runs = append(runs, r)
			continue
		}
		logger.Warn("skipping unparseable run", "dir", dirs[i], "error", failures[i].Error())
		skipped = append(skipped, fmt.Sprintf("%s: %v", dirs[i], failures[i]))
	}
	return runs, skipped, nil
}

// assignRunVariants resolves base-key collisions. Within a colliding
// group each run takes a variant derived from its path; runs with no
// derivable variant stay unvarianted.
func assignRunVariants(runs []*run) {
	groups := make(map[string][]*run)
	for _, r := range runs {
		groups[r.baseKey()] = append(groups[r.baseKey()], r)
	}
	for _, group := range groups {
		if len(group) <= 1 {
			continue
		}
		for _, r := range group {
			r.runVariant = runVariantFromPath(r.rel)
		}
	}
}

// assemble flattens parsed runs into the manifest and the payload list.
// Runs are processed in walk order; a run that still collides on key and
// scenario after the variant pass replaces the earlier run's scenario.
func assemble(runs []*run, logger *logging.Logger) (*datatypes.Manifest, []payload) {
	manifest := &datatypes.Manifest{
		Version:     datatypes.ManifestVersion,
		GeneratedAt: time.Now().UTC(),
		Experiments: make(map[string]datatypes.ManifestExperiment),
	}
	var payloads []payload

	for _, r := range runs {
		key := r.key()
		exp, ok := manifest.Experiments[key]
		if !ok {
			exp = datatypes.ManifestExperiment{
				ADMType:     r.admType,
				LLMBackbone: r.llmBackbone,
				RunVariant:  r.runVariant,
				KDMAValues:  r.kdma.Values(),
				Scenarios:   make(map[string]datatypes.ManifestScenario),
			}
		}

		runScenarios := make(map[string][]datatypes.ManifestScene)
		sceneCount := make(map[string]int)
		for i, entry := range r.entries {
			scenarioID := entry.Input.ScenarioID
			if scenarioID == "" {
				scenarioID = "unknown_scenario"
			} else {
				scenarioID = validation.SanitizeRefSegment(scenarioID)
			}
			sceneID := strconv.Itoa(sceneCount[scenarioID])
			sceneCount[scenarioID]++

			var timingS float64
			if i < len(r.timings.Scenarios) {
				timingS = r.timings.Scenarios[i].AvgTimeS
			}

			ref := key + "/" + scenarioID + "/" + sceneID
			runScenarios[scenarioID] = append(runScenarios[scenarioID], datatypes.ManifestScene{
				SceneID:   sceneID,
				ResultRef: ref,
				TimingS:   timingS,
			})

			choices := make([]datatypes.Choice, 0, len(entry.Input.Choices))
			for _, c := range entry.Input.Choices {
				choices = append(choices, datatypes.Choice{
					ActionID:        c.ActionID,
					Description:     c.Unstructured,
					KDMAAssociation: c.KDMAAssociation,
				})
			}
			payloads = append(payloads, payload{
				ref: ref,
				result: &datatypes.DecisionResult{
					ScenarioID:    scenarioID,
					SceneID:       sceneID,
					InputText:     entry.Input.State,
					Choices:       choices,
					ChosenIndex:   chosenIndex(entry.Output.Choice, entry.Input.Choices),
					Justification: entry.Output.Justification,
					DecisionTimeS: timingS,
				},
			})
		}

		for scenarioID, scenes := range runScenarios {
			if _, exists := exp.Scenarios[scenarioID]; exists {
				logger.Warn("scenario collision, replacing", "key", key, "scenario", scenarioID, "run", r.rel)
			}
			exp.Scenarios[scenarioID] = datatypes.ManifestScenario{Scenes: scenes}
		}
		manifest.Experiments[key] = exp
	}
	return manifest, payloads
}

// writePayloads stores every decision payload. Later writes win on ref
// collisions, matching the manifest's replacement semantics.
func writePayloads(ctx context.Context, storePath string, payloads []payload, logger *logging.Logger) error {
	store, err := storage.Open(storage.BuildConfig(storePath))
	if err != nil {
		return fmt.Errorf("opening results store: %w", err)
	}
	for _, p := range payloads {
		if err := store.PutResult(ctx, p.ref, p.result); err != nil {
			_ = store.Close()
			return fmt.Errorf("storing %s: %w", p.ref, err)
		}
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing results store: %w", err)
	}
	logger.Info("results store written", "path", storePath, "payloads", len(payloads))
	return nil
}
