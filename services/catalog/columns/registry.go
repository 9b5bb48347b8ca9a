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
Package columns manages the lifecycle of one session's comparison
columns: the live editing slot plus pinned comparisons, each owning a
parameter tuple, resolver-derived options, and an independent fetch
state machine (pending -> loading -> loaded | error, re-entering loading
on any edit).

# Edit Flow

Every edit resolves synchronously under the registry lock, then issues
an asynchronous fetch for the corrected tuple:

 1. Map the UI event to an explicit field change.
 2. Resolve against the catalog snapshot; store tuple and options.
 3. Bump the column's resolution sequence number and enter loading.
 4. Issue a fetch unless one is already in flight for the column.

Slider-backed KDMA edits are debounced: positions accumulate per column
and only the last value of each name resolves once the window elapses.

# Fetch Ordering

Responses carry the sequence number of the resolution that issued them.
A response older than the column's latest resolution is discarded and a
fresh fetch is issued for the current tuple, so a column always
converges to its newest selection no matter how responses interleave.
At most one fetch is outstanding per column; sibling columns fetch
independently and never block each other.

# Thread Safety

All exported methods are safe for concurrent use. Errors are column
scoped: a dead end, missing result, or retrieval failure surfaces on the
owning column only.
*/
package columns

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/fetch"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
	"github.com/AleutianAI/AlignScope/services/catalog/observability"
	"github.com/AleutianAI/AlignScope/services/catalog/resolver"
	"github.com/AleutianAI/AlignScope/services/catalog/statetoken"
)

// =============================================================================
// Dependencies and Configuration
// =============================================================================

// CatalogProvider supplies the current catalog snapshot. Hot reload swaps
// snapshots atomically; a resolution and its fetch always share one.
type CatalogProvider interface {
	Snapshot() *index.Index
}

// Fetcher retrieves the payload for a resolved tuple.
type Fetcher interface {
	Fetch(ctx context.Context, cat fetch.Catalog, t datatypes.Tuple) (*datatypes.DecisionResult, error)
}

var _ Fetcher = (*fetch.Adapter)(nil)

// Config holds registry tuning.
type Config struct {
	// DebounceWindow is how long slider edits accumulate before one
	// resolution fires. Default: 500ms.
	DebounceWindow time.Duration

	// FetchTimeout bounds one payload retrieval. Default: 10s.
	FetchTimeout time.Duration

	// MaxColumns caps columns per session.
	// Default: datatypes.MaxColumnsPerSession.
	MaxColumns int

	// Logger receives registry events. Default: logging.Default().
	Logger *logging.Logger

	// Metrics receives counters and gauges. May be nil.
	Metrics *observability.Metrics
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 500 * time.Millisecond,
		FetchTimeout:   10 * time.Second,
		MaxColumns:     datatypes.MaxColumnsPerSession,
	}
}

func applyConfigDefaults(cfg *Config) {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 500 * time.Millisecond
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxColumns <= 0 {
		cfg.MaxColumns = datatypes.MaxColumnsPerSession
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
}

// Update is pushed to subscribers whenever a column changes or is
// removed.
type Update struct {
	Column  datatypes.ColumnView `json:"column"`
	Removed bool                 `json:"removed,omitempty"`
}

// =============================================================================
// Registry
// =============================================================================

// Registry owns one session's columns. Create with NewRegistry, seed with
// Bootstrap, release with Close.
type Registry struct {
	catalog CatalogProvider
	fetcher Fetcher
	cfg     Config
	logger  *logging.Logger
	metrics *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	columns []*column
	subs    map[int]chan Update
	nextSub int
	closed  bool
}

// NewRegistry builds an empty registry. Call Bootstrap before serving it.
func NewRegistry(catalog CatalogProvider, fetcher Fetcher, cfg Config) *Registry {
	applyConfigDefaults(&cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		catalog: catalog,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]chan Update),
	}
}

// Bootstrap seeds the registry from decoded state, or with one default
// column when tuples is nil. Tuples beyond the column cap are dropped.
// Each tuple replays column creation in order; every one is repaired
// against the current catalog, so stale tokens degrade to the nearest
// valid combination instead of failing.
func (r *Registry) Bootstrap(tuples []datatypes.Tuple) ([]datatypes.ColumnView, error) {
	if len(tuples) == 0 {
		view, err := r.CreateColumn(datatypes.Tuple{}, observability.TriggerBootstrap)
		if err != nil {
			return nil, err
		}
		return []datatypes.ColumnView{view}, nil
	}
	if len(tuples) > r.cfg.MaxColumns {
		tuples = tuples[:r.cfg.MaxColumns]
	}
	views := make([]datatypes.ColumnView, 0, len(tuples))
	for _, t := range tuples {
		view, err := r.CreateColumn(t, observability.TriggerBootstrap)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateColumn adds a column seeded from the given tuple and converges it
// to a valid combination with a full revalidation pass. The empty tuple
// seeds the first globally valid combination.
func (r *Registry) CreateColumn(seed datatypes.Tuple, trigger observability.Trigger) (datatypes.ColumnView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return datatypes.ColumnView{}, ErrRegistryClosed
	}
	if len(r.columns) >= r.cfg.MaxColumns {
		return datatypes.ColumnView{}, ErrTooManyColumns
	}

	col := &column{
		id:    uuid.New().String(),
		tuple: seed.Clone(),
		state: datatypes.FetchPending,
	}
	r.columns = append(r.columns, col)
	r.metrics.ColumnsDelta(1)
	r.logger.Info("column created", "column_id", col.id, "trigger", string(trigger))

	r.resolveAndFetchLocked(col, datatypes.Changes{}, trigger)
	return col.view(r.isLiveLocked(col)), nil
}

// CopyColumn adds a column seeded verbatim from another column's tuple.
// The seed is already valid, so resolution is a confirmation pass.
func (r *Registry) CopyColumn(sourceID string) (datatypes.ColumnView, error) {
	r.mu.Lock()
	src := r.findLocked(sourceID)
	if src == nil {
		r.mu.Unlock()
		return datatypes.ColumnView{}, ErrColumnNotFound
	}
	seed := src.tuple.Clone()
	r.mu.Unlock()

	return r.CreateColumn(seed, observability.TriggerCopy)
}

// RemoveColumn discards a column along with its pending debounce state.
// The last remaining column cannot be removed.
func (r *Registry) RemoveColumn(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if len(r.columns) <= 1 {
		if r.findLocked(id) != nil {
			return ErrLastColumn
		}
		return ErrColumnNotFound
	}

	for i, col := range r.columns {
		if col.id != id {
			continue
		}
		col.stopDebounce()
		r.columns = append(r.columns[:i], r.columns[i+1:]...)
		r.metrics.ColumnsDelta(-1)
		r.logger.Info("column removed", "column_id", id)
		r.publishLocked(Update{Column: datatypes.ColumnView{ID: id}, Removed: true})
		// An in-flight fetch for the removed column lands in
		// onFetchDone, finds no column, and is dropped.
		return nil
	}
	return ErrColumnNotFound
}

// ApplyEvent maps one UI event onto a column edit. Select events resolve
// immediately; setKdmaValue debounces; addKdma and removeKdma rewrite the
// KDMA set and resolve immediately.
//
// The returned view reflects the synchronous resolution only; payloads
// arrive later through Column, Columns, or a subscription.
func (r *Registry) ApplyEvent(columnID string, req *datatypes.ColumnEventRequest) (datatypes.ColumnView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return datatypes.ColumnView{}, ErrRegistryClosed
	}
	col := r.findLocked(columnID)
	if col == nil {
		return datatypes.ColumnView{}, ErrColumnNotFound
	}

	switch req.Event {
	case datatypes.EventSelectScenario, datatypes.EventSelectScene,
		datatypes.EventSelectADM, datatypes.EventSelectLLM,
		datatypes.EventSelectRunVariant:
		r.resolveAndFetchLocked(col, datatypes.ScalarChange(req.Event.Kind(), req.Value), observability.TriggerEdit)

	case datatypes.EventSetKDMAValue:
		if req.Value01 == nil {
			return datatypes.ColumnView{}, datatypes.ErrEventValue01Required
		}
		if !r.kdmaRoomLocked(col, req.Name) {
			return datatypes.ColumnView{}, ErrKDMASetFull
		}
		r.scheduleKDMALocked(col, req.Name, *req.Value01)

	case datatypes.EventAddKDMA:
		if !r.kdmaRoomLocked(col, req.Name) {
			return datatypes.ColumnView{}, ErrKDMASetFull
		}
		set := currentKDMASet(col)
		set[req.Name] = r.defaultKDMAValueLocked(col, req.Name)
		r.resolveAndFetchLocked(col, datatypes.KDMAChange(set), observability.TriggerEdit)

	case datatypes.EventRemoveKDMA:
		set := currentKDMASet(col)
		delete(set, req.Name)
		r.resolveAndFetchLocked(col, datatypes.KDMAChange(set), observability.TriggerEdit)

	default:
		return datatypes.ColumnView{}, ErrUnknownEvent
	}

	return col.view(r.isLiveLocked(col)), nil
}

// Column returns one column's current view.
func (r *Registry) Column(id string) (datatypes.ColumnView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	col := r.findLocked(id)
	if col == nil {
		return datatypes.ColumnView{}, ErrColumnNotFound
	}
	return col.view(r.isLiveLocked(col)), nil
}

// Columns returns every column's view in display order.
func (r *Registry) Columns() []datatypes.ColumnView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]datatypes.ColumnView, 0, len(r.columns))
	for i, col := range r.columns {
		views = append(views, col.view(i == 0))
	}
	return views
}

// EncodeState serializes the columns' tuples into a shareable token.
// Payloads and fetch states are never encoded.
func (r *Registry) EncodeState() (string, error) {
	r.mu.Lock()
	tuples := make([]datatypes.Tuple, 0, len(r.columns))
	for _, col := range r.columns {
		tuples = append(tuples, col.tuple.Clone())
	}
	r.mu.Unlock()
	return statetoken.Encode(tuples)
}

// Subscribe registers for column updates. The returned cancel func must
// be called to release the subscription. Slow consumers lose updates
// rather than blocking edits.
func (r *Registry) Subscribe() (<-chan Update, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan Update, 16)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Close cancels in-flight fetches, disarms debounce timers, and closes
// subscriptions. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	for _, col := range r.columns {
		col.stopDebounce()
	}
	r.metrics.ColumnsDelta(-len(r.columns))
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// =============================================================================
// Resolution and Fetch Lifecycle
// =============================================================================

// resolveAndFetchLocked runs one synchronous resolution and issues the
// follow-up fetch. Callers hold r.mu.
func (r *Registry) resolveAndFetchLocked(col *column, changes datatypes.Changes, trigger observability.Trigger) {
	snap := r.catalog.Snapshot()
	res := resolver.Resolve(snap, col.tuple, changes)

	col.tuple = res.Tuple
	col.options = res.Options
	col.snap = snap
	col.seq++
	col.state = datatypes.FetchLoading
	col.errMsg = ""

	r.metrics.RecordResolution(trigger)
	r.logger.Debug("column resolved",
		"column_id", col.id,
		"trigger", string(trigger),
		"seq", col.seq,
		"fully_specified", col.tuple.FullySpecified(),
	)

	r.requestFetchLocked(col)
	r.publishLocked(Update{Column: col.view(r.isLiveLocked(col))})
}

// requestFetchLocked issues a fetch for the column's current tuple unless
// one is already outstanding. Callers hold r.mu.
func (r *Registry) requestFetchLocked(col *column) {
	if col.inFlight {
		// The in-flight response will observe the newer seq and
		// re-issue for the current tuple.
		return
	}
	col.inFlight = true
	go r.runFetch(col.id, col.snap, col.tuple.Clone(), col.seq)
}

// runFetch performs one payload retrieval outside the lock.
func (r *Registry) runFetch(columnID string, snap *index.Index, tuple datatypes.Tuple, seq uint64) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	payload, err := r.fetcher.Fetch(ctx, snap, tuple)
	r.onFetchDone(columnID, seq, payload, err, time.Since(start))
}

// onFetchDone applies a fetch outcome, discarding it when a newer
// resolution superseded the request.
func (r *Registry) onFetchDone(columnID string, seq uint64, payload *datatypes.DecisionResult, err error, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	col := r.findLocked(columnID)
	if col == nil {
		return
	}
	col.inFlight = false

	if seq != col.seq {
		r.metrics.RecordStaleFetch()
		r.logger.Debug("stale fetch discarded", "column_id", col.id, "stale_seq", seq, "current_seq", col.seq)
		r.requestFetchLocked(col)
		return
	}

	if err != nil {
		col.state = datatypes.FetchError
		col.errMsg = err.Error()
		col.payload = nil
		status := observability.FetchStatusError
		if errors.Is(err, fetch.ErrNotFound) {
			status = observability.FetchStatusNotFound
		}
		r.metrics.RecordFetch(status, took.Seconds())
		r.logger.Warn("column fetch failed", "column_id", col.id, "error", err.Error())
	} else {
		col.state = datatypes.FetchLoaded
		col.payload = payload
		col.errMsg = ""
		r.metrics.RecordFetch(observability.FetchStatusLoaded, took.Seconds())
	}

	r.publishLocked(Update{Column: col.view(r.isLiveLocked(col))})
}

// =============================================================================
// Debounced KDMA Edits
// =============================================================================

// scheduleKDMALocked accumulates one slider position and (re)arms the
// column's debounce timer. Callers hold r.mu.
func (r *Registry) scheduleKDMALocked(col *column, name string, value float64) {
	if col.pendingKDMA == nil {
		col.pendingKDMA = make(map[string]float64)
	} else {
		r.metrics.RecordDebounceCoalesced()
	}
	col.pendingKDMA[name] = value

	if col.debounce != nil {
		col.debounce.Reset(r.cfg.DebounceWindow)
		return
	}
	id := col.id
	col.debounce = time.AfterFunc(r.cfg.DebounceWindow, func() {
		r.fireDebounce(id)
	})
}

// fireDebounce folds the accumulated slider positions into the column's
// KDMA set and resolves once.
func (r *Registry) fireDebounce(columnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	col := r.findLocked(columnID)
	if col == nil {
		return
	}
	pending := col.pendingKDMA
	col.pendingKDMA = nil
	col.debounce = nil
	if len(pending) == 0 {
		return
	}

	set := currentKDMASet(col)
	for name, v := range pending {
		set[name] = v
	}
	r.resolveAndFetchLocked(col, datatypes.KDMAChange(set), observability.TriggerDebounce)
}

// =============================================================================
// Helpers
// =============================================================================

func (r *Registry) findLocked(id string) *column {
	for _, col := range r.columns {
		if col.id == id {
			return col
		}
	}
	return nil
}

func (r *Registry) isLiveLocked(col *column) bool {
	return len(r.columns) > 0 && r.columns[0] == col
}

func (r *Registry) publishLocked(upd Update) {
	for _, ch := range r.subs {
		select {
		case ch <- upd:
		default:
		}
	}
}

// kdmaRoomLocked reports whether the column can accept the named KDMA:
// either the name is already present (on the tuple or pending in the
// debounce window) or the combined set stays within
// datatypes.MaxKDMAsPerSet. Callers hold r.mu.
func (r *Registry) kdmaRoomLocked(col *column, name string) bool {
	set, _ := col.tuple.KDMAField()
	if _, ok := set[name]; ok {
		return true
	}
	if _, ok := col.pendingKDMA[name]; ok {
		return true
	}
	names := len(set)
	for pending := range col.pendingKDMA {
		if _, ok := set[pending]; !ok {
			names++
		}
	}
	return names < datatypes.MaxKDMAsPerSet
}

// currentKDMASet returns a mutable copy of the column's KDMA set, empty
// when unset.
func currentKDMASet(col *column) datatypes.KDMASet {
	set, ok := col.tuple.KDMAField()
	if !ok {
		return datatypes.KDMASet{}
	}
	cp := set.Clone()
	if cp == nil {
		cp = datatypes.KDMASet{}
	}
	return cp
}

// defaultKDMAValueLocked picks the value a newly added KDMA starts at:
// the value from a catalog record extending the column's current set by
// exactly this name, else the name's value from any record under the
// column's higher-priority fields, else the name's value anywhere in the
// catalog, else 0.5. Callers hold r.mu.
func (r *Registry) defaultKDMAValueLocked(col *column, name string) float64 {
	snap := col.snap
	if snap == nil {
		snap = r.catalog.Snapshot()
	}
	current := currentKDMASet(col)
	candidates := snap.RecordsMatching(col.tuple, datatypes.KindKDMA)

	for _, rec := range candidates {
		if len(rec.KDMA) != len(current)+1 {
			continue
		}
		v, hasName := rec.KDMA[name]
		if !hasName {
			continue
		}
		extended := current.Clone()
		extended[name] = v
		if rec.KDMA.Equal(extended) {
			return v
		}
	}
	for _, rec := range candidates {
		if v, ok := rec.KDMA[name]; ok {
			return v
		}
	}
	for _, rec := range snap.Records() {
		if v, ok := rec.KDMA[name]; ok {
			return v
		}
	}
	return 0.5
}
