// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

func testResult(scene string) *datatypes.DecisionResult {
	return &datatypes.DecisionResult{
		ScenarioID: "S1",
		SceneID:    scene,
		InputText:  "Two patients, one dose.",
		Choices: []datatypes.Choice{
			{ActionID: "treat_a", Description: "Treat patient A", KDMAAssociation: map[string]float64{"merit": 0.9}},
			{ActionID: "treat_b", Description: "Treat patient B"},
		},
		ChosenIndex:   0,
		Justification: "Patient A has the better prognosis.",
		DecisionTimeS: 1.25,
	}
}

// TestPutGetResult verifies a payload round-trips through the store.
func TestPutGetResult(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ref := "greedy_gpt_merit-0.5/S1/0"

	require.NoError(t, store.PutResult(ctx, ref, testResult("0")))

	got, err := store.GetResult(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "S1", got.ScenarioID)
	assert.Equal(t, "0", got.SceneID)
	require.Len(t, got.Choices, 2)
	assert.Equal(t, "treat_a", got.Choices[0].ActionID)
	assert.InDelta(t, 0.9, got.Choices[0].KDMAAssociation["merit"], 1e-9)
	assert.Equal(t, 0, got.ChosenIndex)
	assert.Equal(t, "Treat patient A", got.Chosen().Description)
}

// TestGetResult_NotFound verifies the sentinel for missing refs.
func TestGetResult_NotFound(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetResult(context.Background(), "missing/S1/0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultNotFound)
}

// TestPutResult_EmptyRef verifies empty refs are rejected on both paths.
func TestPutResult_EmptyRef(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	assert.ErrorIs(t, store.PutResult(ctx, "", testResult("0")), ErrEmptyRef)
	_, err = store.GetResult(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyRef)
}

// TestPutResult_Overwrite verifies the latest write wins.
func TestPutResult_Overwrite(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ref := "greedy_gpt/S1/0"

	first := testResult("0")
	require.NoError(t, store.PutResult(ctx, ref, first))

	second := testResult("0")
	second.Justification = "Revised reasoning."
	require.NoError(t, store.PutResult(ctx, ref, second))

	got, err := store.GetResult(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Revised reasoning.", got.Justification)
}

// TestCountAndListRefs verifies key-only scans over stored payloads.
func TestCountAndListRefs(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	refs := []string{
		"greedy_gpt/S1/0",
		"greedy_gpt/S1/1",
		"greedy_gpt/S2/0",
		"random_no_llm/S1/0",
	}
	for _, ref := range refs {
		require.NoError(t, store.PutResult(ctx, ref, testResult("0")))
	}

	count, err := store.CountResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	listed, err := store.ListRefs(ctx, "greedy_gpt/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"greedy_gpt/S1/0", "greedy_gpt/S1/1", "greedy_gpt/S2/0"}, listed)

	limited, err := store.ListRefs(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// TestOpen_Persistent verifies data survives reopen on disk.
func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ref := "greedy_gpt/S1/0"

	store, err := Open(BuildConfig(dir))
	require.NoError(t, err)
	require.NoError(t, store.PutResult(ctx, ref, testResult("0")))
	require.NoError(t, store.Close())

	cfg := DefaultConfig()
	cfg.Path = dir
	store2, err := Open(cfg)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.GetResult(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "S1", got.ScenarioID)
}

// TestStore_ConcurrentReaders verifies concurrent fetches do not
// interfere.
func TestStore_ConcurrentReaders(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ref := "greedy_gpt/S1/0"
	require.NoError(t, store.PutResult(ctx, ref, testResult("0")))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetResult(ctx, ref); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
}

// TestOpen_MissingPath verifies persistent mode requires a path.
func TestOpen_MissingPath(t *testing.T) {
	_, err := Open(DefaultConfig())
	require.Error(t, err)
}

// TestStore_ContextCancelled verifies cancelled contexts short-circuit.
func TestStore_ContextCancelled(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.PutResult(ctx, "x/y/z", testResult("0")))
	_, err = store.GetResult(ctx, "x/y/z")
	assert.Error(t, err)
}
