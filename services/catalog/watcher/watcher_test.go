// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

func writeManifest(t *testing.T, path string, sceneCount int) {
	t.Helper()
	scenes := make([]datatypes.ManifestScene, 0, sceneCount)
	for i := 0; i < sceneCount; i++ {
		id := strconv.Itoa(i)
		scenes = append(scenes, datatypes.ManifestScene{
			SceneID:   id,
			ResultRef: "pipeline_baseline_no_llm/scn_a/" + id,
			TimingS:   0.1,
		})
	}
	m := &datatypes.Manifest{
		Version:     datatypes.ManifestVersion,
		GeneratedAt: time.Now().UTC(),
		Experiments: map[string]datatypes.ManifestExperiment{
			"pipeline_baseline_no_llm": {
				ADMType:     "pipeline_baseline",
				LLMBackbone: "no_llm",
				KDMAValues:  []datatypes.KDMAValue{},
				Scenarios: map[string]datatypes.ManifestScenario{
					"scn_a": {Scenes: scenes},
				},
			},
		},
	}
	m.RecomputeMetadata()

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0644))
}

func newWatchedCatalog(t *testing.T, path string) *Catalog {
	t.Helper()
	opts := DefaultOptions()
	opts.DebounceWindow = 30 * time.Millisecond
	c, err := New(path, opts)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestNew_LoadsInitialSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, 2)

	c := newWatchedCatalog(t, path)
	assert.Equal(t, 2, c.Snapshot().Len())
	assert.Equal(t, 1, c.Manifest().Metadata.TotalExperiments)
}

func TestNew_FailsWithoutManifest(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "manifest.json"), DefaultOptions())
	assert.Error(t, err)
}

func TestReload_KeepsSnapshotOnBadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, 1)
	c := newWatchedCatalog(t, path)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	assert.Error(t, c.Reload())
	assert.Equal(t, 1, c.Snapshot().Len(), "bad reload must keep the previous snapshot")
}

func TestWatch_ReloadsOnRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, 1)
	c := newWatchedCatalog(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))
	assert.ErrorIs(t, c.Watch(ctx), ErrAlreadyWatching)

	writeManifest(t, path, 3)
	require.Eventually(t, func() bool {
		return c.Snapshot().Len() == 3
	}, 3*time.Second, 10*time.Millisecond, "rewrite should hot-swap the snapshot")
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	writeManifest(t, path, 1)
	c := newWatchedCatalog(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))
	before := c.Snapshot()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Same(t, before, c.Snapshot(), "sibling writes must not trigger a reload")
}

func TestWatch_SurvivesRemoveAndRecreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	writeManifest(t, path, 1)
	c := newWatchedCatalog(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))

	require.NoError(t, os.Remove(path))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, c.Snapshot().Len(), "removal keeps the last snapshot")

	writeManifest(t, path, 2)
	require.Eventually(t, func() bool {
		return c.Snapshot().Len() == 2
	}, 3*time.Second, 10*time.Millisecond)
}
