// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "errors"

// Sentinel errors for request validation beyond what tags express.
// Handlers map these to 400 responses.
var (
	// ErrEventValueRequired indicates a select event arrived without a
	// value for a kind that cannot be empty.
	ErrEventValueRequired = errors.New("event requires a value")

	// ErrEventNameRequired indicates a KDMA event arrived without a
	// KDMA name.
	ErrEventNameRequired = errors.New("event requires a kdma name")

	// ErrEventValue01Required indicates a setKdmaValue event arrived
	// without a value.
	ErrEventValue01Required = errors.New("event requires a value01")
)
