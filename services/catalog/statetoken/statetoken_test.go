// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package statetoken

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

func fullTuple(scenario, scene, adm, llm, variant string, kdma datatypes.KDMASet) datatypes.Tuple {
	var t datatypes.Tuple
	t.SetScalarField(datatypes.KindScenario, scenario)
	t.SetScalarField(datatypes.KindScene, scene)
	t.SetKDMAField(kdma)
	t.SetScalarField(datatypes.KindADM, adm)
	t.SetScalarField(datatypes.KindLLM, llm)
	t.SetScalarField(datatypes.KindRunVariant, variant)
	return t
}

func TestRoundTrip(t *testing.T) {
	tuples := []datatypes.Tuple{
		fullTuple("S1", "0", "greedy", "gpt", "", datatypes.KDMASet{"merit": 0.5, "affiliation": 0.3}),
		fullTuple("S2", "1", "random", "no_llm", "rerun", datatypes.KDMASet{}),
	}

	token, err := Encode(tuples)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q is not URL-safe", token)
	}

	back := Decode(token)
	if len(back) != len(tuples) {
		t.Fatalf("decoded %d tuples, want %d", len(back), len(tuples))
	}
	for i := range tuples {
		if !back[i].Equal(tuples[i]) {
			t.Errorf("tuple %d: %+v != %+v", i, back[i], tuples[i])
		}
	}
}

func TestRoundTrip_PartialTuple(t *testing.T) {
	var partial datatypes.Tuple
	partial.SetScalarField(datatypes.KindScenario, "S1")
	partial.SetScalarField(datatypes.KindRunVariant, "")

	token, err := Encode([]datatypes.Tuple{partial})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back := Decode(token)
	if len(back) != 1 || !back[0].Equal(partial) {
		t.Errorf("partial tuple round trip = %+v", back)
	}
	if back[0].IsFieldSet(datatypes.KindScene) {
		t.Error("unset scene came back set")
	}
	if v, ok := back[0].ScalarField(datatypes.KindRunVariant); !ok || v != "" {
		t.Error("explicit empty run_variant lost")
	}
}

func TestRoundTrip_EmptyKDMADistinctFromUnset(t *testing.T) {
	var withEmpty datatypes.Tuple
	withEmpty.SetKDMAField(datatypes.KDMASet{})
	var without datatypes.Tuple
	without.SetScalarField(datatypes.KindScenario, "S1")

	token, err := Encode([]datatypes.Tuple{withEmpty, without})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back := Decode(token)
	if len(back) != 2 {
		t.Fatalf("decoded %d tuples, want 2", len(back))
	}
	if !back[0].IsFieldSet(datatypes.KindKDMA) {
		t.Error("explicit empty kdma set came back unset")
	}
	if back[1].IsFieldSet(datatypes.KindKDMA) {
		t.Error("unset kdma came back set")
	}
}

func TestEncode_Empty(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Error("expected error encoding zero columns")
	}
}

func TestDecode_Garbage(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not base64":     "!!!!",
		"base64 garbage": base64.RawURLEncoding.EncodeToString([]byte("not json")),
		"wrong version":  base64.RawURLEncoding.EncodeToString([]byte(`{"v":99,"cols":[{}]}`)),
		"no columns":     base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"cols":[]}`)),
		"unknown field":  base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"cols":[{}],"extra":1}`)),
		"truncated json": base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"cols":[{"scena`)),
		"oversized":      strings.Repeat("A", datatypes.MaxStateTokenBytes+1),
	}
	for name, token := range cases {
		if got := Decode(token); got != nil {
			t.Errorf("%s: Decode returned %v, want nil", name, got)
		}
	}
}

func TestDecode_KDMASetOverLimit(t *testing.T) {
	set := datatypes.KDMASet{}
	for i := 0; i < datatypes.MaxKDMAsPerSet; i++ {
		set[fmt.Sprintf("axis%02d", i)] = 0.5
	}

	// At the limit the set round-trips.
	token, err := Encode([]datatypes.Tuple{fullTuple("S1", "0", "greedy", "gpt", "", set)})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := Decode(token); len(got) != 1 {
		t.Fatalf("Decode rejected a %d-name KDMA set: got %v", len(set), got)
	}

	// One past it the token is corrupt.
	set["overflow"] = 0.5
	token, err = Encode([]datatypes.Tuple{fullTuple("S1", "0", "greedy", "gpt", "", set)})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := Decode(token); got != nil {
		t.Errorf("Decode accepted a %d-name KDMA set, want nil", len(set))
	}
}

func TestDecode_PayloadNeverEncoded(t *testing.T) {
	// Tokens carry tuples only; a token claiming payload data is simply
	// an unknown field and decodes to nil.
	raw := `{"v":1,"cols":[{"scenario":"S1","payload":{"x":1}}]}`
	token := base64.RawURLEncoding.EncodeToString([]byte(raw))
	if got := Decode(token); got != nil {
		t.Errorf("Decode accepted foreign payload field: %v", got)
	}
}
