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

import (
	"time"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
)

// column is one comparison slot. All fields are guarded by the owning
// registry's mutex; only the fetch goroutine runs outside it.
type column struct {
	id      string
	tuple   datatypes.Tuple
	options datatypes.OptionSet
	state   datatypes.FetchState
	payload *datatypes.DecisionResult
	errMsg  string

	// snap is the catalog snapshot the tuple was last resolved against.
	// Fetches for this column run against it, never a newer snapshot.
	snap *index.Index

	// seq counts resolutions; a fetch response tagged with an older seq
	// is stale and discarded.
	seq uint64

	// inFlight gates fetches: at most one outstanding fetch per column.
	inFlight bool

	// pendingKDMA accumulates debounced slider positions by name until
	// the window elapses; debounce is the armed timer, nil when idle.
	pendingKDMA map[string]float64
	debounce    *time.Timer
}

// view projects the column for the API. The tuple is cloned; options and
// payload are shared read-only.
func (c *column) view(live bool) datatypes.ColumnView {
	return datatypes.ColumnView{
		ID:         c.id,
		Live:       live,
		Tuple:      c.tuple.Clone(),
		Options:    c.options,
		FetchState: c.state,
		Payload:    c.payload,
		Error:      c.errMsg,
	}
}

// stopDebounce disarms any pending debounce task and drops accumulated
// slider positions.
func (c *column) stopDebounce() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.pendingKDMA = nil
}
