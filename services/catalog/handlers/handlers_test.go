// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/fetch"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
	"github.com/AleutianAI/AlignScope/services/catalog/watcher"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fixtures
// =============================================================================

// testManifest builds a catalog with one no-LLM baseline across two
// scenarios and two aligned configurations at different merit targets.
func testManifest() *datatypes.Manifest {
	m := &datatypes.Manifest{
		Version:     datatypes.ManifestVersion,
		GeneratedAt: time.Now().UTC(),
		Experiments: map[string]datatypes.ManifestExperiment{
			"greedy_no_llm": {
				ADMType:     "greedy",
				LLMBackbone: "no_llm",
				KDMAValues:  []datatypes.KDMAValue{},
				Scenarios: map[string]datatypes.ManifestScenario{
					"scn_a": {Scenes: []datatypes.ManifestScene{
						{SceneID: "0", ResultRef: "greedy_no_llm/scn_a/0", TimingS: 1.5},
						{SceneID: "1", ResultRef: "greedy_no_llm/scn_a/1", TimingS: 2.0},
					}},
					"scn_b": {Scenes: []datatypes.ManifestScene{
						{SceneID: "0", ResultRef: "greedy_no_llm/scn_b/0", TimingS: 0.7},
					}},
				},
			},
			"tuned_gpt_merit-0.5": {
				ADMType:     "tuned",
				LLMBackbone: "gpt",
				KDMAValues:  []datatypes.KDMAValue{{Name: "merit", Value: 0.5}},
				Scenarios: map[string]datatypes.ManifestScenario{
					"scn_a": {Scenes: []datatypes.ManifestScene{
						{SceneID: "0", ResultRef: "tuned_gpt_merit-0.5/scn_a/0", TimingS: 3.2},
					}},
				},
			},
			"tuned_gpt_merit-0.8": {
				ADMType:     "tuned",
				LLMBackbone: "gpt",
				KDMAValues:  []datatypes.KDMAValue{{Name: "merit", Value: 0.8}},
				Scenarios: map[string]datatypes.ManifestScenario{
					"scn_a": {Scenes: []datatypes.ManifestScene{
						{SceneID: "0", ResultRef: "tuned_gpt_merit-0.8/scn_a/0", TimingS: 2.9},
					}},
				},
			},
		},
	}
	m.RecomputeMetadata()
	return m
}

func writeManifestFile(t *testing.T, m *datatypes.Manifest) string {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

// lookupFetcher resolves payloads directly off the snapshot so handler
// tests need no badger store. A forced error simulates storage loss.
type lookupFetcher struct {
	mu  sync.Mutex
	err error
}

func (f *lookupFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *lookupFetcher) Fetch(_ context.Context, cat fetch.Catalog, t datatypes.Tuple) (*datatypes.DecisionResult, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rec, ok := cat.LookupExact(t)
	if !ok {
		return nil, fetch.ErrNotFound
	}
	return &datatypes.DecisionResult{
		ScenarioID: rec.Scenario,
		SceneID:    rec.Scene,
		InputText:  "state for " + rec.ResultRef,
	}, nil
}

type testServer struct {
	router  *gin.Engine
	mgr     *session.Manager
	fetcher *lookupFetcher
	cat     *watcher.Catalog
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	path := writeManifestFile(t, testManifest())
	cat, err := watcher.New(path, watcher.Options{})
	require.NoError(t, err)
	t.Cleanup(cat.Stop)

	fetcher := &lookupFetcher{}
	cfg := session.DefaultConfig()
	cfg.Columns.DebounceWindow = 40 * time.Millisecond
	cfg.Columns.MaxColumns = 3
	mgr := session.NewManager(cat, fetcher, cfg)
	t.Cleanup(mgr.Close)

	router := gin.New()
	registerTestRoutes(router, cat, fetcher, mgr)
	return &testServer{router: router, mgr: mgr, fetcher: fetcher, cat: cat}
}

// registerTestRoutes wires the handlers the way the routes package
// does, kept local so the handlers package does not import it.
func registerTestRoutes(router *gin.Engine, cat *watcher.Catalog, fetcher columns.Fetcher, mgr *session.Manager) {
	router.GET("/health", HealthCheck(cat))
	v1 := router.Group("/v1")
	v1.GET("/manifest", GetManifest(cat))
	v1.POST("/resolve", HandleResolve(cat))
	v1.POST("/results/lookup", HandleResultLookup(cat, fetcher))
	sess := v1.Group("/sessions")
	sess.POST("", CreateSession(mgr))
	sess.GET("/:sessionId", GetSession(mgr))
	sess.DELETE("/:sessionId", DeleteSession(mgr))
	sess.GET("/:sessionId/link", GetSessionLink(mgr))
	sess.GET("/:sessionId/ws", SessionStream(mgr))
	sess.POST("/:sessionId/columns", AddColumn(mgr))
	sess.DELETE("/:sessionId/columns/:columnId", RemoveColumn(mgr))
	sess.POST("/:sessionId/columns/:columnId/events", ApplyColumnEvent(mgr))
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v),
		"body was: %s", w.Body.String())
}

func (ts *testServer) createSession(t *testing.T, state string) datatypes.SessionView {
	t.Helper()
	var body any
	if state != "" {
		body = datatypes.CreateSessionRequest{State: state}
	}
	w := ts.do(t, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var view datatypes.SessionView
	decodeInto(t, w, &view)
	return view
}

// waitColumn polls the session until the column satisfies cond.
func (ts *testServer) waitColumn(t *testing.T, sessionID, columnID string,
	cond func(datatypes.ColumnView) bool) datatypes.ColumnView {
	t.Helper()
	var last datatypes.ColumnView
	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/v1/sessions/"+sessionID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var view datatypes.SessionView
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			return false
		}
		for _, col := range view.Columns {
			if col.ID == columnID {
				last = col
				return cond(col)
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "column never reached the expected state, last: %+v", &last)
	return last
}

func strPtr(s string) *string { return &s }

// =============================================================================
// System Endpoints
// =============================================================================

func TestHealth_ReportsCatalogSize(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status      string `json:"status"`
		Records     int    `json:"records"`
		Experiments int    `json:"experiments"`
	}
	decodeInto(t, w, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 5, body.Records)
	assert.Equal(t, 3, body.Experiments)
}

func TestManifest_ReturnsVocabulary(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/manifest", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body datatypes.ManifestSummary
	decodeInto(t, w, &body)
	assert.Equal(t, datatypes.ManifestVersion, body.Version)
	assert.Contains(t, body.Metadata.ADMTypes, "greedy")
	assert.Contains(t, body.Metadata.ADMTypes, "tuned")
	assert.Contains(t, body.Metadata.KDMANames, "merit")
	assert.NotEmpty(t, body.GeneratedAt)
}

// =============================================================================
// Stateless Resolution
// =============================================================================

func TestResolve_RepairsTupleAndReturnsOptions(t *testing.T) {
	ts := newTestServer(t)

	req := datatypes.ResolveRequest{
		Tuple:   datatypes.Tuple{Scenario: strPtr("scn_b")},
		Changes: datatypes.Changes{Scenario: strPtr("scn_b")},
	}
	w := ts.do(t, http.MethodPost, "/v1/resolve", req)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var res datatypes.ResolveResponse
	decodeInto(t, w, &res)
	require.NotNil(t, res.Tuple.Scene)
	assert.Equal(t, "0", *res.Tuple.Scene)
	require.NotNil(t, res.Tuple.ADMType)
	assert.Equal(t, "greedy", *res.Tuple.ADMType)
	require.NotNil(t, res.Tuple.LLMBackbone)
	assert.Equal(t, "no_llm", *res.Tuple.LLMBackbone)
	assert.ElementsMatch(t, []string{"scn_a", "scn_b"}, res.Options.Scenario)
}

func TestResolve_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, "/v1/resolve", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "invalid_request", body.Code)
}

// =============================================================================
// Result Lookup
// =============================================================================

func TestResultLookup_ReturnsPayload(t *testing.T) {
	ts := newTestServer(t)

	kdma := datatypes.KDMASet{}
	req := datatypes.LookupRequest{Tuple: datatypes.Tuple{
		Scenario:    strPtr("scn_b"),
		Scene:       strPtr("0"),
		KDMA:        &kdma,
		ADMType:     strPtr("greedy"),
		LLMBackbone: strPtr("no_llm"),
		RunVariant:  strPtr(""),
	}}
	w := ts.do(t, http.MethodPost, "/v1/results/lookup", req)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var payload datatypes.DecisionResult
	decodeInto(t, w, &payload)
	assert.Equal(t, "scn_b", payload.ScenarioID)
}

func TestResultLookup_NotFound(t *testing.T) {
	ts := newTestServer(t)

	req := datatypes.LookupRequest{Tuple: datatypes.Tuple{Scenario: strPtr("scn_zz")}}
	w := ts.do(t, http.MethodPost, "/v1/results/lookup", req)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "result_not_found", body.Code)
}

func TestResultLookup_StorageFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.fetcher.setErr(fetch.ErrPayloadRetrieval)

	kdma := datatypes.KDMASet{}
	req := datatypes.LookupRequest{Tuple: datatypes.Tuple{
		Scenario:    strPtr("scn_b"),
		Scene:       strPtr("0"),
		KDMA:        &kdma,
		ADMType:     strPtr("greedy"),
		LLMBackbone: strPtr("no_llm"),
		RunVariant:  strPtr(""),
	}}
	w := ts.do(t, http.MethodPost, "/v1/results/lookup", req)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

// =============================================================================
// Session Lifecycle
// =============================================================================

func TestCreateSession_DefaultBootstrap(t *testing.T) {
	ts := newTestServer(t)

	view := ts.createSession(t, "")
	assert.NotEmpty(t, view.ID)
	require.Len(t, view.Columns, 1)
	col := view.Columns[0]
	assert.True(t, col.Live)
	require.NotNil(t, col.Tuple.Scenario)
	assert.Equal(t, "scn_a", *col.Tuple.Scenario)
	require.NotNil(t, col.Tuple.ADMType)
	assert.Equal(t, "greedy", *col.Tuple.ADMType)

	loaded := ts.waitColumn(t, view.ID, col.ID, func(c datatypes.ColumnView) bool {
		return c.FetchState == datatypes.FetchLoaded
	})
	require.NotNil(t, loaded.Payload)
	assert.Equal(t, "scn_a", loaded.Payload.ScenarioID)
}

func TestCreateSession_CorruptTokenFallsBack(t *testing.T) {
	ts := newTestServer(t)

	view := ts.createSession(t, "!!definitely-not-base64!!")
	require.Len(t, view.Columns, 1)
	require.NotNil(t, view.Columns[0].Tuple.Scenario)
	assert.Equal(t, "scn_a", *view.Columns[0].Tuple.Scenario)
}

func TestGetSession_UnknownID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/sessions/5c8a73e1-0000-0000-0000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "session_not_found", body.Code)
}

func TestDeleteSession_RemovesIt(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	w := ts.do(t, http.MethodDelete, "/v1/sessions/"+view.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/sessions/"+view.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLink_RoundTrips(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	// Pin a second column and move the live one so the token carries a
	// non-default layout.
	w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	ev := datatypes.ColumnEventRequest{Event: datatypes.EventSelectScenario, Value: "scn_b"}
	w = ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns/"+view.Columns[0].ID+"/events", ev)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	w = ts.do(t, http.MethodGet, "/v1/sessions/"+view.ID+"/link", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var link datatypes.LinkResponse
	decodeInto(t, w, &link)
	require.NotEmpty(t, link.State)

	restored := ts.createSession(t, link.State)
	require.Len(t, restored.Columns, 2)
	require.NotNil(t, restored.Columns[0].Tuple.Scenario)
	assert.Equal(t, "scn_b", *restored.Columns[0].Tuple.Scenario)
	require.NotNil(t, restored.Columns[1].Tuple.Scenario)
	assert.Equal(t, "scn_a", *restored.Columns[1].Tuple.Scenario)
}

// =============================================================================
// Column Operations
// =============================================================================

func TestAddColumn_DefaultAndCopy(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	// Move the live column off the default first.
	ev := datatypes.ColumnEventRequest{Event: datatypes.EventSelectScenario, Value: "scn_b"}
	w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns/"+view.Columns[0].ID+"/events", ev)
	require.Equal(t, http.StatusOK, w.Code)

	// Default add bootstraps from the catalog, not from the live column.
	w = ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var fresh datatypes.ColumnView
	decodeInto(t, w, &fresh)
	require.NotNil(t, fresh.Tuple.Scenario)
	assert.Equal(t, "scn_a", *fresh.Tuple.Scenario)

	// Copy duplicates the source column's parameters.
	w = ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns",
		datatypes.AddColumnRequest{CopyFrom: view.Columns[0].ID})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var copied datatypes.ColumnView
	decodeInto(t, w, &copied)
	require.NotNil(t, copied.Tuple.Scenario)
	assert.Equal(t, "scn_b", *copied.Tuple.Scenario)
	assert.NotEqual(t, view.Columns[0].ID, copied.ID)
}

func TestAddColumn_CapEnforced(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns", nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "column_limit_reached", body.Code)
}

func TestRemoveColumn_LastColumnStays(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	w := ts.do(t, http.MethodDelete, "/v1/sessions/"+view.ID+"/columns/"+view.Columns[0].ID, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "last_column", body.Code)
}

func TestRemoveColumn_Succeeds(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var added datatypes.ColumnView
	decodeInto(t, w, &added)

	w = ts.do(t, http.MethodDelete, "/v1/sessions/"+view.ID+"/columns/"+added.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/sessions/"+view.ID, nil)
	var after datatypes.SessionView
	decodeInto(t, w, &after)
	assert.Len(t, after.Columns, 1)
}

// =============================================================================
// Column Events
// =============================================================================

func TestApplyEvent_SelectScenarioCascades(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	ev := datatypes.ColumnEventRequest{Event: datatypes.EventSelectScenario, Value: "scn_b"}
	w := ts.do(t, http.MethodPost, "/v1/sessions/"+view.ID+"/columns/"+view.Columns[0].ID+"/events", ev)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var col datatypes.ColumnView
	decodeInto(t, w, &col)
	require.NotNil(t, col.Tuple.Scenario)
	assert.Equal(t, "scn_b", *col.Tuple.Scenario)
	require.NotNil(t, col.Tuple.Scene)
	assert.Equal(t, "0", *col.Tuple.Scene)
}

func TestApplyEvent_UnknownColumn(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")

	ev := datatypes.ColumnEventRequest{Event: datatypes.EventSelectScenario, Value: "scn_b"}
	w := ts.do(t, http.MethodPost,
		"/v1/sessions/"+view.ID+"/columns/2b1dfe6e-0000-0000-0000-000000000000/events", ev)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body datatypes.ErrorResponse
	decodeInto(t, w, &body)
	assert.Equal(t, "column_not_found", body.Code)
}

func TestApplyEvent_RejectsBadEvents(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")
	base := "/v1/sessions/" + view.ID + "/columns/" + view.Columns[0].ID + "/events"

	// Unknown event name fails validation.
	w := ts.do(t, http.MethodPost, base, map[string]string{"event": "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Slider event without a position.
	w = ts.do(t, http.MethodPost, base,
		datatypes.ColumnEventRequest{Event: datatypes.EventSetKDMAValue, Name: "merit"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Select without a value.
	w = ts.do(t, http.MethodPost, base,
		datatypes.ColumnEventRequest{Event: datatypes.EventSelectScenario})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyEvent_SliderDebounces(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")
	colID := view.Columns[0].ID
	base := "/v1/sessions/" + view.ID + "/columns/" + colID + "/events"

	// Pick up the merit dimension; the catalog default for a single
	// new KDMA is the first aligned configuration.
	w := ts.do(t, http.MethodPost, base,
		datatypes.ColumnEventRequest{Event: datatypes.EventAddKDMA, Name: "merit"})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	var col datatypes.ColumnView
	decodeInto(t, w, &col)
	require.NotNil(t, col.Tuple.KDMA)
	assert.InDelta(t, 0.5, (*col.Tuple.KDMA)["merit"], 1e-9)
	require.NotNil(t, col.Tuple.ADMType)
	assert.Equal(t, "tuned", *col.Tuple.ADMType)

	// A burst of slider positions coalesces into one resolution at the
	// final value; the immediate response still shows the old tuple.
	for _, v := range []float64{0.55, 0.62, 0.7, 0.8} {
		v := v
		w = ts.do(t, http.MethodPost, base,
			datatypes.ColumnEventRequest{Event: datatypes.EventSetKDMAValue, Name: "merit", Value01: &v})
		require.Equal(t, http.StatusOK, w.Code)
		decodeInto(t, w, &col)
		assert.InDelta(t, 0.5, (*col.Tuple.KDMA)["merit"], 1e-9,
			"slider edits must not resolve before the debounce fires")
	}

	settled := ts.waitColumn(t, view.ID, colID, func(c datatypes.ColumnView) bool {
		return c.Tuple.KDMA != nil && (*c.Tuple.KDMA)["merit"] == 0.8
	})
	require.NotNil(t, settled.Tuple.ADMType)
	assert.Equal(t, "tuned", *settled.Tuple.ADMType)
}

func TestApplyEvent_DeadEndSurfacesOnColumn(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "")
	colID := view.Columns[0].ID
	base := "/v1/sessions/" + view.ID + "/columns/" + colID + "/events"

	w := ts.do(t, http.MethodPost, base,
		datatypes.ColumnEventRequest{Event: datatypes.EventAddKDMA, Name: "merit"})
	require.Equal(t, http.StatusOK, w.Code)

	// No catalog record has merit 0.33; lower-priority fields go null
	// and the fetch reports not found, all without an HTTP error.
	v := 0.33
	w = ts.do(t, http.MethodPost, base,
		datatypes.ColumnEventRequest{Event: datatypes.EventSetKDMAValue, Name: "merit", Value01: &v})
	require.Equal(t, http.StatusOK, w.Code)

	settled := ts.waitColumn(t, view.ID, colID, func(c datatypes.ColumnView) bool {
		return c.Tuple.KDMA != nil && (*c.Tuple.KDMA)["merit"] == 0.33 &&
			c.FetchState == datatypes.FetchError
	})
	assert.Nil(t, settled.Tuple.ADMType)
	assert.Nil(t, settled.Payload)
	assert.NotEmpty(t, settled.Error)
}
