// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch resolves a fully-specified parameter tuple to its stored
// result payload. It is the one suspending step in a column's lifecycle;
// everything before it (resolution) is pure computation.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
	"github.com/AleutianAI/AlignScope/services/catalog/storage"
)

// Sentinel errors for fetch outcomes. Both are column-scoped: callers
// surface them on the owning column only.
var (
	// ErrNotFound indicates the tuple has no exact catalog match, or
	// the matched ref has no stored payload (catalog/store drift).
	ErrNotFound = errors.New("no result for tuple")

	// ErrPayloadRetrieval indicates the payload exists but could not be
	// retrieved. There is no automatic retry; the next edit on the
	// column is the retry path.
	ErrPayloadRetrieval = errors.New("payload retrieval failed")
)

// Catalog is the index capability the adapter needs.
type Catalog interface {
	LookupExact(t datatypes.Tuple) (datatypes.Record, bool)
}

var _ Catalog = (*index.Index)(nil)

// PayloadStore is the storage capability the adapter needs.
type PayloadStore interface {
	GetResult(ctx context.Context, ref string) (*datatypes.DecisionResult, error)
}

var _ PayloadStore = (*storage.Store)(nil)

// Adapter retrieves result payloads for resolved tuples.
type Adapter struct {
	store PayloadStore
}

// New builds an adapter over a payload store.
func New(store PayloadStore) *Adapter {
	return &Adapter{store: store}
}

// Fetch resolves a tuple to its payload.
//
// # Description
//
// Fetch looks the tuple up in the given catalog snapshot and retrieves
// the referenced payload. The catalog is a parameter, not adapter state,
// so one edit's resolution and fetch run against the same snapshot even
// across hot reloads. Partial tuples never match and return ErrNotFound.
//
// # Inputs
//
//   - ctx: cancels the retrieval
//   - cat: the catalog snapshot the tuple was resolved against
//   - t: fully-specified tuple
//
// # Outputs
//
//   - *datatypes.DecisionResult: the stored payload
//   - error: ErrNotFound or ErrPayloadRetrieval
func (a *Adapter) Fetch(ctx context.Context, cat Catalog, t datatypes.Tuple) (*datatypes.DecisionResult, error) {
	rec, ok := cat.LookupExact(t)
	if !ok {
		return nil, ErrNotFound
	}

	payload, err := a.store.GetResult(ctx, rec.ResultRef)
	if err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			return nil, fmt.Errorf("%w: ref %s missing from store", ErrNotFound, rec.ResultRef)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayloadRetrieval, err)
	}
	return payload, nil
}
