// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides the in-memory catalog index: the flattened,
// immutable set of experiment records the resolver and fetch layers query.
//
// # Ownership Model
//
// The index copies nothing on query; returned records are the index's own
// slices' elements:
//   - Records MUST NOT be mutated by callers
//   - KDMA sets inside records are shared, not copied
//
// # Thread Safety
//
// An Index is immutable after New() returns and is safe for concurrent
// readers. Hot reload replaces the whole Index atomically rather than
// mutating one in place.
//
// # Lifecycle
//
//  1. Build records (from a manifest, or directly in tests)
//  2. Create with New(records) or FromManifest(m)
//  3. Query with RecordsMatching(), LookupExact(), option helpers
package index

import (
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// Index is an immutable snapshot of the catalog's records in canonical
// catalog-insertion order.
type Index struct {
	records []datatypes.Record
}

// New builds an index over the given records. The slice is used as-is;
// its order becomes the catalog-insertion order.
func New(records []datatypes.Record) *Index {
	return &Index{records: records}
}

// FromManifest flattens a manifest into an index in canonical order.
func FromManifest(m *datatypes.Manifest) *Index {
	return New(m.Records())
}

// Len returns the number of records in the catalog.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Records returns the catalog's records in canonical order. Callers must
// not mutate the returned slice.
func (ix *Index) Records() []datatypes.Record {
	return ix.records
}

// First returns the catalog's first record, the bootstrap default for new
// columns. ok is false for an empty catalog.
func (ix *Index) First() (datatypes.Record, bool) {
	if len(ix.records) == 0 {
		return datatypes.Record{}, false
	}
	return ix.records[0], true
}

// RecordsMatching returns every record whose fields, restricted to kinds
// of strictly higher priority than `excluding`, equal the tuple's set
// fields. Order follows the catalog-insertion order.
//
// # Description
//
// This is the resolver's one query primitive. Only kinds ranked above the
// excluded kind constrain the result; the excluded kind itself and every
// lower-priority field of the tuple are ignored, as are unset fields.
// Pass the empty kind to exclude nothing, which makes every set field
// constrain (full-tuple matching). Matching is exact on scalar fields and
// epsilon set equality on kdma_assignment.
//
// # Inputs
//
//   - t: possibly-partial tuple whose set fields constrain the result
//   - excluding: the kind being recomputed, or "" for full matching
//
// # Outputs
//
//   - []datatypes.Record: matches in catalog order; nil when none match
func (ix *Index) RecordsMatching(t datatypes.Tuple, excluding datatypes.ParameterKind) []datatypes.Record {
	maxRank := len(datatypes.KindsByPriority)
	if excluding != "" {
		maxRank = excluding.Rank()
	}
	var out []datatypes.Record
	for _, rec := range ix.records {
		if matchesBelowRank(t, rec, maxRank) {
			out = append(out, rec)
		}
	}
	return out
}

// LookupExact returns the first record matching every field of a
// fully-specified tuple. ok is false when the tuple has unset fields or
// no record matches.
func (ix *Index) LookupExact(t datatypes.Tuple) (datatypes.Record, bool) {
	if !t.FullySpecified() {
		return datatypes.Record{}, false
	}
	for _, rec := range ix.records {
		if t.MatchesRecord(rec) {
			return rec, true
		}
	}
	return datatypes.Record{}, false
}

// matchesBelowRank reports whether every set field of t ranked strictly
// above maxRank (numerically below it) equals the record's corresponding
// field.
func matchesBelowRank(t datatypes.Tuple, r datatypes.Record, maxRank int) bool {
	for _, kind := range datatypes.KindsByPriority {
		if kind.Rank() >= maxRank {
			break
		}
		if !t.IsFieldSet(kind) {
			continue
		}
		if kind == datatypes.KindKDMA {
			set, _ := t.KDMAField()
			if !set.Equal(r.KDMA) {
				return false
			}
			continue
		}
		v, _ := t.ScalarField(kind)
		if v != r.ScalarField(kind) {
			return false
		}
	}
	return true
}

// DistinctScalar extracts the distinct values of a scalar kind from the
// given records, preserving first-seen order.
func DistinctScalar(records []datatypes.Record, kind datatypes.ParameterKind) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, rec := range records {
		v := rec.ScalarField(kind)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DistinctKDMA extracts the distinct KDMA sets from the given records,
// preserving first-seen order. Distinctness uses epsilon set equality, so
// the scan is quadratic in the number of distinct sets; option lists stay
// small in practice.
func DistinctKDMA(records []datatypes.Record) []datatypes.KDMASet {
	var out []datatypes.KDMASet
	for _, rec := range records {
		found := false
		for _, existing := range out {
			if existing.Equal(rec.KDMA) {
				found = true
				break
			}
		}
		if !found {
			set := rec.KDMA
			if set == nil {
				set = datatypes.KDMASet{}
			}
			out = append(out, set)
		}
	}
	return out
}
