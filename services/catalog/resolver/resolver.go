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
Package resolver implements constraint resolution over the catalog index:
given a column's current parameter tuple and a set of explicit changes, it
produces a corrected, catalog-valid tuple plus the valid-option set for
every parameter kind.

# Repair Priority

Parameter kinds carry a fixed priority order (scenario first, run_variant
last). Resolution never overrides a kind at or above the priority of the
most recently changed kind:

 1. Apply the explicit changes to the current tuple.
 2. changeRank = the minimum priority rank among changed kinds, or -1
    when no change was given (full revalidation).
 3. Walk kinds in ascending priority order; for each kind ranked below
    changeRank, recompute its valid options under the tuple's
    higher-priority fields and, if the current value is not among them,
    replace it with the first option in catalog order (or unset it when
    no option exists).
 4. Recompute options for every kind under the final tuple, including
    kinds the repair loop skipped, so selection controls always reflect
    the returned tuple.

A kind with no valid options is a dead end, not an error: the field is
unset and lower-priority kinds simply receive no constraint from it.

# Design Principles

  - Pure computation: no I/O, no stored state, safe for concurrent use
  - The catalog is consumed through a one-method view for testability
  - The caller owns fetch and lifecycle concerns
*/
package resolver

import (
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
)

// CatalogView is the slice of the catalog index the resolver consumes.
type CatalogView interface {
	// RecordsMatching returns records whose fields, restricted to kinds
	// of strictly higher priority than `excluding`, equal the tuple's
	// set fields, in catalog-insertion order.
	RecordsMatching(t datatypes.Tuple, excluding datatypes.ParameterKind) []datatypes.Record
}

var _ CatalogView = (*index.Index)(nil)

// Resolution is the outcome of one resolve pass: a corrected tuple and
// the option sets consistent with it.
type Resolution struct {
	Tuple   datatypes.Tuple
	Options datatypes.OptionSet
}

// Resolve corrects a tuple against the catalog after a set of explicit
// changes.
//
// # Description
//
// Resolve applies the changes, silently repairs every kind of strictly
// lower priority than the highest-priority changed kind, and returns the
// final tuple with fresh options for all kinds. An empty Changes
// revalidates the whole tuple in priority order, which is how a freshly
// seeded or copied column converges to a valid combination. Resolve is
// pure: it never mutates its inputs and never fails; unsatisfiable
// constraints surface as unset fields and empty option lists.
//
// # Inputs
//
//   - cat: read-only catalog view
//   - current: the column's tuple before the edit
//   - changes: explicit field replacements; empty means revalidate all
//
// # Outputs
//
//   - Resolution: corrected tuple plus per-kind options under it
//
// # Examples
//
//	res := resolver.Resolve(ix, col.Tuple, datatypes.ScalarChange(datatypes.KindADM, "greedy"))
//	col.Tuple, col.Options = res.Tuple, res.Options
func Resolve(cat CatalogView, current datatypes.Tuple, changes datatypes.Changes) Resolution {
	candidate := changes.ApplyTo(current)
	changeRank := changes.Rank()

	for _, kind := range datatypes.KindsByPriority {
		if kind.Rank() <= changeRank {
			continue
		}
		repairField(cat, &candidate, kind)
	}

	return Resolution{
		Tuple:   candidate,
		Options: OptionsFor(cat, candidate),
	}
}

// repairField recomputes one kind's options under the candidate's
// higher-priority fields and replaces the candidate's value when it is
// not among them.
func repairField(cat CatalogView, candidate *datatypes.Tuple, kind datatypes.ParameterKind) {
	matches := cat.RecordsMatching(*candidate, kind)

	if kind == datatypes.KindKDMA {
		opts := index.DistinctKDMA(matches)
		set, isSet := candidate.KDMAField()
		if isSet && containsKDMA(opts, set) {
			return
		}
		if len(opts) == 0 {
			candidate.ClearField(kind)
			return
		}
		candidate.SetKDMAField(opts[0])
		return
	}

	opts := index.DistinctScalar(matches, kind)
	v, isSet := candidate.ScalarField(kind)
	if isSet && containsScalar(opts, v) {
		return
	}
	if len(opts) == 0 {
		candidate.ClearField(kind)
		return
	}
	candidate.SetScalarField(kind, opts[0])
}

// OptionsFor computes the valid-option set for every kind under a tuple:
// for each kind, the distinct values among records matching the tuple's
// strictly higher-priority fields, in catalog order.
func OptionsFor(cat CatalogView, t datatypes.Tuple) datatypes.OptionSet {
	var out datatypes.OptionSet
	for _, kind := range datatypes.KindsByPriority {
		matches := cat.RecordsMatching(t, kind)
		if kind == datatypes.KindKDMA {
			out.KDMA = index.DistinctKDMA(matches)
			continue
		}
		out.SetScalarOptions(kind, index.DistinctScalar(matches, kind))
	}
	return out
}

func containsScalar(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

func containsKDMA(opts []datatypes.KDMASet, set datatypes.KDMASet) bool {
	for _, o := range opts {
		if o.Equal(set) {
			return true
		}
	}
	return false
}
