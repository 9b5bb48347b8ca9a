// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the request and response types for the browse
// service's HTTP API, with validation limits on everything a client can
// send.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Input Limits
// =============================================================================

// Input size limits for client-supplied values. Byte lengths, not rune
// counts, to bound memory regardless of encoding.
const (
	// MaxFieldValueBytes bounds any single parameter value in an event
	// or tuple.
	MaxFieldValueBytes = 1024

	// MaxKDMANameBytes bounds a KDMA name.
	MaxKDMANameBytes = 256

	// MaxStateTokenBytes bounds an encoded state token. Tokens beyond
	// this are rejected before decoding is attempted.
	MaxStateTokenBytes = 16384

	// MaxColumnsPerSession bounds how many comparison columns one
	// session may hold.
	MaxColumnsPerSession = 12

	// MaxKDMAsPerSet bounds the distinct names in one alignment target.
	MaxKDMAsPerSet = 16
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// catalogValidate is the validator instance for catalog API datatypes.
// Initialized in init() with custom validators.
var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()

	_ = catalogValidate.RegisterValidation("fieldbytes", validateFieldBytes)
	_ = catalogValidate.RegisterValidation("kdmaname", validateKDMAName)
}

// validateFieldBytes checks that a string field does not exceed
// MaxFieldValueBytes. Byte length, not rune count.
func validateFieldBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxFieldValueBytes
}

// validateKDMAName checks that a KDMA name is non-empty and within
// MaxKDMANameBytes.
func validateKDMAName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "" && len(name) <= MaxKDMANameBytes
}

// =============================================================================
// Column Event Requests
// =============================================================================

// ColumnEvent names one user interaction with a column's controls.
type ColumnEvent string

const (
	EventSelectScenario   ColumnEvent = "selectScenario"
	EventSelectScene      ColumnEvent = "selectScene"
	EventSelectADM        ColumnEvent = "selectAdm"
	EventSelectLLM        ColumnEvent = "selectLlm"
	EventSelectRunVariant ColumnEvent = "selectRunVariant"
	EventSetKDMAValue     ColumnEvent = "setKdmaValue"
	EventAddKDMA          ColumnEvent = "addKdma"
	EventRemoveKDMA       ColumnEvent = "removeKdma"
)

// Kind returns the parameter kind the event edits.
func (e ColumnEvent) Kind() ParameterKind {
	switch e {
	case EventSelectScenario:
		return KindScenario
	case EventSelectScene:
		return KindScene
	case EventSelectADM:
		return KindADM
	case EventSelectLLM:
		return KindLLM
	case EventSelectRunVariant:
		return KindRunVariant
	case EventSetKDMAValue, EventAddKDMA, EventRemoveKDMA:
		return KindKDMA
	default:
		return ""
	}
}

// ColumnEventRequest is the body for POST
// /v1/sessions/:id/columns/:cid/events.
//
// # Description
//
// ColumnEventRequest carries one control interaction against one column.
// Select events replace a scalar parameter and carry Value. KDMA events
// carry Name, and setKdmaValue additionally carries a pointer Value01 in
// [0,1]. Every event triggers constraint resolution on the target column;
// the response is the column's post-resolution state.
//
// # Validation
//
// Uses go-playground/validator:
//   - Event: required, one of the eight ColumnEvent names
//   - Value: max MaxFieldValueBytes bytes
//   - Name: required for KDMA events, max MaxKDMANameBytes bytes
//   - Value01: 0.0-1.0 inclusive when present
//
// # Examples
//
//	// Slider move
//	req := ColumnEventRequest{
//	    Event:   EventSetKDMAValue,
//	    Name:    "merit",
//	    Value01: &v,
//	}
//
// # Limitations
//
//   - One event per request; batching is not supported
//   - setKdmaValue events are debounced server-side, so intermediate
//     slider positions may never resolve
//
// # Assumptions
//
//   - Values reference catalog vocabulary; unknown values resolve to a
//     repaired tuple rather than an error
type ColumnEventRequest struct {
	Event   ColumnEvent `json:"event" validate:"required,oneof=selectScenario selectScene selectAdm selectLlm selectRunVariant setKdmaValue addKdma removeKdma"`
	Value   string      `json:"value,omitempty" validate:"fieldbytes"`
	Name    string      `json:"name,omitempty" validate:"omitempty,kdmaname"`
	Value01 *float64    `json:"value01,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Validate validates the event structurally, including the per-event
// field requirements the tags cannot express.
func (r *ColumnEventRequest) Validate() error {
	if err := catalogValidate.Struct(r); err != nil {
		return err
	}
	switch r.Event {
	case EventSelectScenario, EventSelectScene, EventSelectADM,
		EventSelectLLM, EventSelectRunVariant:
		// Value may be empty only for run_variant, where "" is a
		// legitimate catalog value.
		if r.Value == "" && r.Event != EventSelectRunVariant {
			return ErrEventValueRequired
		}
	case EventSetKDMAValue:
		if r.Name == "" {
			return ErrEventNameRequired
		}
		if r.Value01 == nil {
			return ErrEventValue01Required
		}
	case EventAddKDMA, EventRemoveKDMA:
		if r.Name == "" {
			return ErrEventNameRequired
		}
	}
	return nil
}

// =============================================================================
// Session and Column Requests
// =============================================================================

// CreateSessionRequest is the body for POST /v1/sessions. State, when
// present, is a shareable token to bootstrap the session from; invalid
// tokens fall back to the default bootstrap silently.
type CreateSessionRequest struct {
	State string `json:"state,omitempty" validate:"omitempty,max=16384"`
}

// Validate validates the request fields.
func (r *CreateSessionRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// AddColumnRequest is the body for POST /v1/sessions/:id/columns.
// CopyFrom, when present, names an existing column whose parameters the
// new column duplicates; otherwise the new column bootstraps from the
// catalog default.
type AddColumnRequest struct {
	CopyFrom string `json:"copy_from,omitempty" validate:"omitempty,uuid4"`
}

// Validate validates the request fields.
func (r *AddColumnRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// =============================================================================
// Stateless Resolution Requests
// =============================================================================

// ResolveRequest is the body for POST /v1/resolve: one pure constraint
// resolution with no session state involved.
type ResolveRequest struct {
	Tuple   Tuple   `json:"tuple"`
	Changes Changes `json:"changes"`
}

// Validate validates the request fields.
func (r *ResolveRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// ResolveResponse is the result of a pure resolution.
type ResolveResponse struct {
	Tuple   Tuple     `json:"tuple"`
	Options OptionSet `json:"options"`
}

// LookupRequest is the body for POST /v1/results/lookup: exact-match
// result retrieval for a fully-specified tuple.
type LookupRequest struct {
	Tuple Tuple `json:"tuple"`
}

// Validate validates the request fields.
func (r *LookupRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// =============================================================================
// Column and Session Responses
// =============================================================================

// FetchState names a column's result-fetch lifecycle state.
type FetchState string

const (
	FetchPending FetchState = "pending"
	FetchLoading FetchState = "loading"
	FetchLoaded  FetchState = "loaded"
	FetchError   FetchState = "error"
)

// ColumnView is the API projection of one comparison column. Live marks
// the editing slot (the first column); the rest are pinned comparisons.
type ColumnView struct {
	ID         string          `json:"id"`
	Live       bool            `json:"live"`
	Tuple      Tuple           `json:"tuple"`
	Options    OptionSet       `json:"options"`
	FetchState FetchState      `json:"fetch_state"`
	Payload    *DecisionResult `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SessionView is the API projection of one session.
type SessionView struct {
	ID      string       `json:"id"`
	Columns []ColumnView `json:"columns"`
}

// LinkResponse carries a shareable state token for a session.
type LinkResponse struct {
	State string `json:"state"`
}

// ManifestSummary is the GET /v1/manifest response body.
type ManifestSummary struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	Metadata    ManifestMetadata `json:"metadata"`
}

// ErrorResponse is the uniform error body for API failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
