// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the catalog
// service.
//
// # Description
//
// Metrics cover the resolution hot path, per-column fetch outcomes,
// session and column population, state-token decode failures, and catalog
// reloads. Exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking. Every helper method is also nil-receiver safe so tests can run
// components without registering collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "alignscope"

// Subsystem for catalog browsing metrics
const catalogSubsystem = "catalog"

// Metrics holds all Prometheus metrics for catalog browsing.
//
// # Fields
//
//   - ResolutionsTotal: Counter of constraint resolutions by trigger
//   - FetchesTotal: Counter of result fetches by outcome
//   - FetchDurationSeconds: Histogram of fetch latency by outcome
//   - ActiveSessions: Gauge of live sessions
//   - ActiveColumns: Gauge of columns across all sessions
//   - StateDecodeFailuresTotal: Counter of rejected state tokens
//   - DebounceCoalescedTotal: Counter of slider edits absorbed by debounce
//   - CatalogRecords: Gauge of records in the loaded catalog
//   - CatalogReloadsTotal: Counter of manifest reloads by status
type Metrics struct {
	// ResolutionsTotal counts resolution passes.
	// Labels: trigger (bootstrap, copy, edit, debounce)
	ResolutionsTotal *prometheus.CounterVec

	// FetchesTotal counts fetch completions.
	// Labels: status (loaded, not_found, error, stale)
	FetchesTotal *prometheus.CounterVec

	// FetchDurationSeconds measures fetch latency.
	// Labels: status (loaded, not_found, error)
	FetchDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks live sessions.
	ActiveSessions prometheus.Gauge

	// ActiveColumns tracks columns across all sessions.
	ActiveColumns prometheus.Gauge

	// StateDecodeFailuresTotal counts malformed state tokens. Each one
	// fell back to the default bootstrap.
	StateDecodeFailuresTotal prometheus.Counter

	// DebounceCoalescedTotal counts slider edits absorbed into a
	// pending debounced resolution.
	DebounceCoalescedTotal prometheus.Counter

	// CatalogRecords tracks the record count of the active catalog.
	CatalogRecords prometheus.Gauge

	// CatalogReloadsTotal counts manifest reloads.
	// Labels: status (success, error)
	CatalogReloadsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "resolutions_total",
				Help:      "Total constraint resolution passes by trigger",
			},
			[]string{"trigger"},
		),

		FetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "fetches_total",
				Help:      "Total result fetch completions by status",
			},
			[]string{"status"},
		),

		FetchDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Result fetch latency in seconds by status",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"status"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live browsing sessions",
			},
		),

		ActiveColumns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "active_columns",
				Help:      "Number of comparison columns across all sessions",
			},
		),

		StateDecodeFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "state_decode_failures_total",
				Help:      "Total malformed state tokens silently replaced by the default bootstrap",
			},
		),

		DebounceCoalescedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "debounce_coalesced_total",
				Help:      "Total slider edits absorbed into a pending debounced resolution",
			},
		),

		CatalogRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "records",
				Help:      "Record count of the active catalog",
			},
		),

		CatalogReloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: catalogSubsystem,
				Name:      "reloads_total",
				Help:      "Total manifest reloads by status",
			},
			[]string{"status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Label Values
// =============================================================================

// Trigger labels a resolution pass with what caused it.
type Trigger string

const (
	// TriggerBootstrap is a column seeded at session creation.
	TriggerBootstrap Trigger = "bootstrap"

	// TriggerCreate is a column added to an existing session from the
	// catalog default.
	TriggerCreate Trigger = "create"

	// TriggerCopy is a column seeded from another column's tuple.
	TriggerCopy Trigger = "copy"

	// TriggerEdit is an immediate field edit.
	TriggerEdit Trigger = "edit"

	// TriggerDebounce is a coalesced slider edit firing.
	TriggerDebounce Trigger = "debounce"
)

// FetchStatus labels a fetch completion.
type FetchStatus string

const (
	FetchStatusLoaded   FetchStatus = "loaded"
	FetchStatusNotFound FetchStatus = "not_found"
	FetchStatusError    FetchStatus = "error"

	// FetchStatusStale marks responses discarded because a newer
	// resolution superseded the request.
	FetchStatusStale FetchStatus = "stale"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordResolution records one resolution pass.
func (m *Metrics) RecordResolution(trigger Trigger) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(string(trigger)).Inc()
}

// RecordFetch records a fetch completion and its latency.
func (m *Metrics) RecordFetch(status FetchStatus, seconds float64) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(string(status)).Inc()
	if status != FetchStatusStale {
		m.FetchDurationSeconds.WithLabelValues(string(status)).Observe(seconds)
	}
}

// RecordStaleFetch records a discarded stale fetch response.
func (m *Metrics) RecordStaleFetch() {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(string(FetchStatusStale)).Inc()
}

// SessionOpened increments the session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// ColumnsDelta adjusts the column gauge by n (negative to remove).
func (m *Metrics) ColumnsDelta(n int) {
	if m == nil {
		return
	}
	m.ActiveColumns.Add(float64(n))
}

// RecordStateDecodeFailure counts one rejected state token.
func (m *Metrics) RecordStateDecodeFailure() {
	if m == nil {
		return
	}
	m.StateDecodeFailuresTotal.Inc()
}

// RecordDebounceCoalesced counts one absorbed slider edit.
func (m *Metrics) RecordDebounceCoalesced() {
	if m == nil {
		return
	}
	m.DebounceCoalescedTotal.Inc()
}

// RecordCatalogLoad records a reload outcome and the new record count.
func (m *Metrics) RecordCatalogLoad(records int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.CatalogReloadsTotal.WithLabelValues("success").Inc()
	m.CatalogRecords.Set(float64(records))
}
