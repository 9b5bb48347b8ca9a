// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package statetoken encodes multi-column parameter state to and from a
// compact URL-safe token, the only durable state this system has.
//
// Tokens carry column tuples only, never fetched payloads. Decoding is
// deliberately forgiving at the call site: any malformed token yields
// nil, which callers treat as "no state to restore" and bootstrap a
// default column instead. A corrupt shared link degrades to a fresh
// session, never an error page.
package statetoken

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// tokenVersion is bumped when the envelope layout changes; tokens from
// other versions decode to nil.
const tokenVersion = 1

// envelope is the serialized form: version plus one tuple per column in
// display order.
type envelope struct {
	Version int               `json:"v"`
	Columns []datatypes.Tuple `json:"cols"`
}

// Encode serializes column tuples into a URL-safe token.
//
// # Inputs
//
//   - tuples: one per column, in display order; must be non-empty
//
// # Outputs
//
//   - string: base64 (RawURLEncoding) of the versioned JSON envelope
//   - error: non-nil only for an empty tuple list
func Encode(tuples []datatypes.Tuple) (string, error) {
	if len(tuples) == 0 {
		return "", ErrNoColumns
	}
	data, err := json.Marshal(envelope{Version: tokenVersion, Columns: tuples})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a token back into column tuples.
//
// # Description
//
// Decode returns nil on any failure: oversized input, bad base64, bad
// JSON, unknown fields, a version mismatch, an empty column list, or a
// KDMA set beyond datatypes.MaxKDMAsPerSet.
// There is no error return; absence and corruption are the same
// "bootstrap from defaults" outcome for the caller.
//
// # Inputs
//
//   - token: candidate token, possibly attacker-controlled
//
// # Outputs
//
//   - []datatypes.Tuple: decoded tuples in display order, or nil
func Decode(token string) []datatypes.Tuple {
	if token == "" || len(token) > datatypes.MaxStateTokenBytes {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	if env.Version != tokenVersion || len(env.Columns) == 0 {
		return nil
	}
	for _, t := range env.Columns {
		if set, ok := t.KDMAField(); ok && len(set) > datatypes.MaxKDMAsPerSet {
			return nil
		}
	}
	return env.Columns
}
