// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package columns

import "errors"

// Sentinel errors for registry operations.
var (
	// ErrColumnNotFound is returned when an operation references a
	// column id the registry does not hold.
	ErrColumnNotFound = errors.New("column not found")

	// ErrLastColumn is returned when removal would leave the registry
	// empty; at least one column always remains.
	ErrLastColumn = errors.New("cannot remove the last column")

	// ErrTooManyColumns is returned when creation would exceed the
	// per-session column cap.
	ErrTooManyColumns = errors.New("column limit reached")

	// ErrUnknownEvent is returned for events the registry cannot map to
	// an edit.
	ErrUnknownEvent = errors.New("unknown column event")

	// ErrKDMASetFull is returned when adding a KDMA name would exceed
	// datatypes.MaxKDMAsPerSet on the column's alignment target.
	ErrKDMASetFull = errors.New("kdma set limit reached")

	// ErrRegistryClosed is returned for operations on a closed
	// registry.
	ErrRegistryClosed = errors.New("registry is closed")
)
