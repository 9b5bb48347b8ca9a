// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared across the catalog
// service: the parameter model (kinds, tuples, KDMA sets, records), the
// manifest schema emitted by the builder, result payloads, and the API
// request/response types.
//
// This file contains the parameter model. Parameter kinds are ordered by a
// fixed priority; the constraint resolver never silently overrides a kind
// of higher priority than the one the user touched.
package datatypes

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Parameter Kinds
// =============================================================================

// ParameterKind identifies one axis of an experiment run selection.
type ParameterKind string

const (
	// KindScenario selects the decision situation. Highest priority.
	KindScenario ParameterKind = "scenario"

	// KindScene selects one indexed instance/step within a scenario.
	KindScene ParameterKind = "scene"

	// KindKDMA selects the alignment target: a set of named decimal
	// values, unique by name. Compared with set equality under
	// KDMAEpsilon tolerance.
	KindKDMA ParameterKind = "kdma_assignment"

	// KindADM selects the decision-maker algorithm under evaluation.
	KindADM ParameterKind = "adm_type"

	// KindLLM selects the language-model backbone ("no_llm" for runs
	// without a structured inference engine).
	KindLLM ParameterKind = "llm_backbone"

	// KindRunVariant selects a named alternate execution of an otherwise
	// identical parameter combination. Lowest priority. The empty string
	// is a legitimate concrete value (unconflicted runs carry it).
	KindRunVariant ParameterKind = "run_variant"
)

// KindsByPriority lists every parameter kind from highest priority
// (rank 0) to lowest. Resolution repairs kinds in this order.
var KindsByPriority = []ParameterKind{
	KindScenario,
	KindScene,
	KindKDMA,
	KindADM,
	KindLLM,
	KindRunVariant,
}

// Rank returns the kind's position in the priority order (0 = highest
// priority). Unknown kinds rank below every real kind.
func (k ParameterKind) Rank() int {
	for i, kind := range KindsByPriority {
		if kind == k {
			return i
		}
	}
	return len(KindsByPriority)
}

// Valid reports whether k names a known parameter kind.
func (k ParameterKind) Valid() bool {
	return k.Rank() < len(KindsByPriority)
}

// IsScalar reports whether the kind carries a plain string value.
// Only kdma_assignment is non-scalar.
func (k ParameterKind) IsScalar() bool {
	return k != KindKDMA
}

// =============================================================================
// KDMA Sets
// =============================================================================

// KDMAEpsilon is the numeric tolerance for comparing KDMA values.
// Values are slider-snapped to coarse steps, so any epsilon well below
// the step size distinguishes distinct values.
const KDMAEpsilon = 1e-3

// KDMASet is an alignment target: named decimal values, unique by name.
// The empty set is a concrete value (an unaligned run), distinct from an
// unset tuple field.
type KDMASet map[string]float64

// Equal reports set equality under KDMAEpsilon: same names, each value
// within tolerance.
func (s KDMASet) Equal(other KDMASet) bool {
	if len(s) != len(other) {
		return false
	}
	for name, v := range s {
		ov, ok := other[name]
		if !ok || math.Abs(v-ov) >= KDMAEpsilon {
			return false
		}
	}
	return true
}

// Names returns the KDMA names in sorted order.
func (s KDMASet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the set.
func (s KDMASet) Clone() KDMASet {
	if s == nil {
		return nil
	}
	out := make(KDMASet, len(s))
	for name, v := range s {
		out[name] = v
	}
	return out
}

// Canonical renders the set as sorted "name-value" parts joined by "_",
// matching the experiment key convention. The empty set renders as "".
func (s KDMASet) Canonical() string {
	parts := make([]string, 0, len(s))
	for _, name := range s.Names() {
		parts = append(parts, name+"-"+FormatKDMAValue(s[name]))
	}
	return strings.Join(parts, "_")
}

// FormatKDMAValue renders a KDMA value the way keys and tokens expect:
// shortest representation that round-trips (0.5 not 0.500000).
func FormatKDMAValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// KDMAValue is the ordered name/value form used by the manifest schema.
type KDMAValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// KDMASetFromValues builds a set from manifest-style name/value pairs.
// Later duplicates of a name win, mirroring map assignment.
func KDMASetFromValues(values []KDMAValue) KDMASet {
	set := make(KDMASet, len(values))
	for _, kv := range values {
		set[kv.Name] = kv.Value
	}
	return set
}

// Values renders the set as sorted manifest-style pairs.
func (s KDMASet) Values() []KDMAValue {
	out := make([]KDMAValue, 0, len(s))
	for _, name := range s.Names() {
		out = append(out, KDMAValue{Name: name, Value: s[name]})
	}
	return out
}

// =============================================================================
// Experiment Records
// =============================================================================

// Record is one concrete, fetchable experiment run. Records are built
// once by the catalog index from the manifest and never mutated.
type Record struct {
	// Scenario is the decision situation identifier.
	Scenario string `json:"scenario"`

	// Scene is the indexed instance/step within the scenario.
	Scene string `json:"scene"`

	// ADMType is the decision-maker algorithm name.
	ADMType string `json:"adm_type"`

	// LLMBackbone is the language-model backbone name ("no_llm" when
	// the run used none).
	LLMBackbone string `json:"llm_backbone"`

	// RunVariant distinguishes otherwise-identical parameter
	// combinations. Empty for unconflicted runs.
	RunVariant string `json:"run_variant"`

	// KDMA is the alignment target. The empty set is a concrete value.
	KDMA KDMASet `json:"kdma_assignment"`

	// ResultRef locates the stored result payload for this run.
	ResultRef string `json:"result_ref"`

	// TimingS is the per-scene decision time in seconds.
	TimingS float64 `json:"timing_s"`
}

// ScalarField returns the record's value for a scalar kind. kdma_assignment
// is not scalar; read the KDMA field directly.
func (r Record) ScalarField(kind ParameterKind) string {
	switch kind {
	case KindScenario:
		return r.Scenario
	case KindScene:
		return r.Scene
	case KindADM:
		return r.ADMType
	case KindLLM:
		return r.LLMBackbone
	case KindRunVariant:
		return r.RunVariant
	default:
		return ""
	}
}

// =============================================================================
// Parameter Tuples
// =============================================================================

// Tuple is a possibly-partial selection: one optional value per parameter
// kind. nil fields impose no constraint. For kdma_assignment, a non-nil
// pointer to an empty set selects unaligned runs; nil leaves the kind
// unconstrained.
type Tuple struct {
	Scenario    *string  `json:"scenario,omitempty"`
	Scene       *string  `json:"scene,omitempty"`
	KDMA        *KDMASet `json:"kdma_assignment,omitempty"`
	ADMType     *string  `json:"adm_type,omitempty"`
	LLMBackbone *string  `json:"llm_backbone,omitempty"`
	RunVariant  *string  `json:"run_variant,omitempty"`
}

// TupleFromRecord returns the fully-specified tuple selecting exactly r.
func TupleFromRecord(r Record) Tuple {
	set := r.KDMA.Clone()
	if set == nil {
		set = KDMASet{}
	}
	return Tuple{
		Scenario:    ptrTo(r.Scenario),
		Scene:       ptrTo(r.Scene),
		KDMA:        &set,
		ADMType:     ptrTo(r.ADMType),
		LLMBackbone: ptrTo(r.LLMBackbone),
		RunVariant:  ptrTo(r.RunVariant),
	}
}

// IsFieldSet reports whether the tuple constrains the given kind.
func (t Tuple) IsFieldSet(kind ParameterKind) bool {
	switch kind {
	case KindScenario:
		return t.Scenario != nil
	case KindScene:
		return t.Scene != nil
	case KindKDMA:
		return t.KDMA != nil
	case KindADM:
		return t.ADMType != nil
	case KindLLM:
		return t.LLMBackbone != nil
	case KindRunVariant:
		return t.RunVariant != nil
	default:
		return false
	}
}

// ScalarField returns the tuple's value for a scalar kind and whether the
// field is set.
func (t Tuple) ScalarField(kind ParameterKind) (string, bool) {
	switch kind {
	case KindScenario:
		if t.Scenario != nil {
			return *t.Scenario, true
		}
	case KindScene:
		if t.Scene != nil {
			return *t.Scene, true
		}
	case KindADM:
		if t.ADMType != nil {
			return *t.ADMType, true
		}
	case KindLLM:
		if t.LLMBackbone != nil {
			return *t.LLMBackbone, true
		}
	case KindRunVariant:
		if t.RunVariant != nil {
			return *t.RunVariant, true
		}
	}
	return "", false
}

// KDMAField returns the tuple's KDMA set and whether the field is set.
func (t Tuple) KDMAField() (KDMASet, bool) {
	if t.KDMA == nil {
		return nil, false
	}
	return *t.KDMA, true
}

// SetScalarField sets a scalar kind to the given value.
func (t *Tuple) SetScalarField(kind ParameterKind, value string) {
	switch kind {
	case KindScenario:
		t.Scenario = &value
	case KindScene:
		t.Scene = &value
	case KindADM:
		t.ADMType = &value
	case KindLLM:
		t.LLMBackbone = &value
	case KindRunVariant:
		t.RunVariant = &value
	}
}

// SetKDMAField sets the kdma_assignment field to a copy of the given set.
func (t *Tuple) SetKDMAField(set KDMASet) {
	cp := set.Clone()
	if cp == nil {
		cp = KDMASet{}
	}
	t.KDMA = &cp
}

// ClearField unsets the given kind.
func (t *Tuple) ClearField(kind ParameterKind) {
	switch kind {
	case KindScenario:
		t.Scenario = nil
	case KindScene:
		t.Scene = nil
	case KindKDMA:
		t.KDMA = nil
	case KindADM:
		t.ADMType = nil
	case KindLLM:
		t.LLMBackbone = nil
	case KindRunVariant:
		t.RunVariant = nil
	}
}

// Clone returns an independent copy of the tuple.
func (t Tuple) Clone() Tuple {
	out := Tuple{}
	if t.Scenario != nil {
		out.Scenario = ptrTo(*t.Scenario)
	}
	if t.Scene != nil {
		out.Scene = ptrTo(*t.Scene)
	}
	if t.KDMA != nil {
		set := t.KDMA.Clone()
		if set == nil {
			set = KDMASet{}
		}
		out.KDMA = &set
	}
	if t.ADMType != nil {
		out.ADMType = ptrTo(*t.ADMType)
	}
	if t.LLMBackbone != nil {
		out.LLMBackbone = ptrTo(*t.LLMBackbone)
	}
	if t.RunVariant != nil {
		out.RunVariant = ptrTo(*t.RunVariant)
	}
	return out
}

// Equal reports structural equality of two tuples: same fields set, same
// values, KDMA compared with set equality under tolerance.
func (t Tuple) Equal(other Tuple) bool {
	for _, kind := range KindsByPriority {
		if t.IsFieldSet(kind) != other.IsFieldSet(kind) {
			return false
		}
		if !t.IsFieldSet(kind) {
			continue
		}
		if kind == KindKDMA {
			if !(*t.KDMA).Equal(*other.KDMA) {
				return false
			}
			continue
		}
		a, _ := t.ScalarField(kind)
		b, _ := other.ScalarField(kind)
		if a != b {
			return false
		}
	}
	return true
}

// FullySpecified reports whether every parameter kind is set. Only
// fully-specified tuples identify a single record and are fetchable.
func (t Tuple) FullySpecified() bool {
	for _, kind := range KindsByPriority {
		if !t.IsFieldSet(kind) {
			return false
		}
	}
	return true
}

// MatchesRecord reports whether every set field of the tuple equals the
// record's corresponding field.
func (t Tuple) MatchesRecord(r Record) bool {
	for _, kind := range KindsByPriority {
		if !t.IsFieldSet(kind) {
			continue
		}
		if kind == KindKDMA {
			if !(*t.KDMA).Equal(r.KDMA) {
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

// ptrTo returns a pointer to a copy of v.
func ptrTo[T any](v T) *T {
	return &v
}

// =============================================================================
// Changes
// =============================================================================

// Changes carries explicit field replacements for a resolution pass. nil
// fields are untouched; a non-nil field is an explicit change even when
// it sets the empty string or the empty KDMA set.
type Changes struct {
	Scenario    *string  `json:"scenario,omitempty"`
	Scene       *string  `json:"scene,omitempty"`
	KDMA        *KDMASet `json:"kdma_assignment,omitempty"`
	ADMType     *string  `json:"adm_type,omitempty"`
	LLMBackbone *string  `json:"llm_backbone,omitempty"`
	RunVariant  *string  `json:"run_variant,omitempty"`
}

// ScalarChange builds a Changes touching a single scalar kind.
func ScalarChange(kind ParameterKind, value string) Changes {
	var c Changes
	switch kind {
	case KindScenario:
		c.Scenario = &value
	case KindScene:
		c.Scene = &value
	case KindADM:
		c.ADMType = &value
	case KindLLM:
		c.LLMBackbone = &value
	case KindRunVariant:
		c.RunVariant = &value
	}
	return c
}

// KDMAChange builds a Changes replacing the kdma_assignment set.
func KDMAChange(set KDMASet) Changes {
	cp := set.Clone()
	if cp == nil {
		cp = KDMASet{}
	}
	return Changes{KDMA: &cp}
}

// IsEmpty reports whether no field is changed.
func (c Changes) IsEmpty() bool {
	return c.Scenario == nil && c.Scene == nil && c.KDMA == nil &&
		c.ADMType == nil && c.LLMBackbone == nil && c.RunVariant == nil
}

// Kinds returns the changed kinds in priority order.
func (c Changes) Kinds() []ParameterKind {
	var kinds []ParameterKind
	for _, kind := range KindsByPriority {
		if c.touches(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Rank returns the minimum priority rank among changed kinds, or -1 when
// no field is changed (meaning: revalidate the whole tuple).
func (c Changes) Rank() int {
	for _, kind := range KindsByPriority {
		if c.touches(kind) {
			return kind.Rank()
		}
	}
	return -1
}

// ApplyTo returns a copy of the tuple with every changed field replaced.
func (c Changes) ApplyTo(t Tuple) Tuple {
	out := t.Clone()
	if c.Scenario != nil {
		out.SetScalarField(KindScenario, *c.Scenario)
	}
	if c.Scene != nil {
		out.SetScalarField(KindScene, *c.Scene)
	}
	if c.KDMA != nil {
		out.SetKDMAField(*c.KDMA)
	}
	if c.ADMType != nil {
		out.SetScalarField(KindADM, *c.ADMType)
	}
	if c.LLMBackbone != nil {
		out.SetScalarField(KindLLM, *c.LLMBackbone)
	}
	if c.RunVariant != nil {
		out.SetScalarField(KindRunVariant, *c.RunVariant)
	}
	return out
}

func (c Changes) touches(kind ParameterKind) bool {
	switch kind {
	case KindScenario:
		return c.Scenario != nil
	case KindScene:
		return c.Scene != nil
	case KindKDMA:
		return c.KDMA != nil
	case KindADM:
		return c.ADMType != nil
	case KindLLM:
		return c.LLMBackbone != nil
	case KindRunVariant:
		return c.RunVariant != nil
	default:
		return false
	}
}

// =============================================================================
// Option Sets
// =============================================================================

// OptionSet holds the valid options per parameter kind under some tuple:
// for each kind, the distinct values present among records matching all
// strictly higher-priority fixed fields, in catalog-insertion order.
type OptionSet struct {
	Scenario    []string  `json:"scenario"`
	Scene       []string  `json:"scene"`
	KDMA        []KDMASet `json:"kdma_assignment"`
	ADMType     []string  `json:"adm_type"`
	LLMBackbone []string  `json:"llm_backbone"`
	RunVariant  []string  `json:"run_variant"`
}

// ScalarOptions returns the options slice for a scalar kind.
func (o OptionSet) ScalarOptions(kind ParameterKind) []string {
	switch kind {
	case KindScenario:
		return o.Scenario
	case KindScene:
		return o.Scene
	case KindADM:
		return o.ADMType
	case KindLLM:
		return o.LLMBackbone
	case KindRunVariant:
		return o.RunVariant
	default:
		return nil
	}
}

// SetScalarOptions replaces the options slice for a scalar kind.
func (o *OptionSet) SetScalarOptions(kind ParameterKind, opts []string) {
	switch kind {
	case KindScenario:
		o.Scenario = opts
	case KindScene:
		o.Scene = opts
	case KindADM:
		o.ADMType = opts
	case KindLLM:
		o.LLMBackbone = opts
	case KindRunVariant:
		o.RunVariant = opts
	}
}

// ContainsScalar reports whether the options for a scalar kind include
// the given value.
func (o OptionSet) ContainsScalar(kind ParameterKind, value string) bool {
	for _, v := range o.ScalarOptions(kind) {
		if v == value {
			return true
		}
	}
	return false
}

// ContainsKDMA reports whether the kdma_assignment options include a set
// equal to the given one under tolerance.
func (o OptionSet) ContainsKDMA(set KDMASet) bool {
	for _, s := range o.KDMA {
		if s.Equal(set) {
			return true
		}
	}
	return false
}
