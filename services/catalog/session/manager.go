// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the live browsing sessions of the catalog
// service. Each session wraps one columns.Registry keyed by a server
// generated UUID; an idle janitor closes sessions that have not been
// touched within the configured TTL.
//
// # State Tokens
//
// Create accepts an optional state token. A decodable token seeds the
// session's columns from the encoded tuples; an absent or corrupt token
// falls back to the catalog default bootstrap without failing the
// request. Decode failures are counted, not surfaced.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/observability"
	"github.com/AleutianAI/AlignScope/services/catalog/statetoken"
)

var (
	// ErrSessionNotFound reports an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions reports that the session cap is reached.
	ErrTooManySessions = errors.New("session limit reached")

	// ErrManagerClosed reports use after Close.
	ErrManagerClosed = errors.New("session manager is closed")
)

// Config holds session manager settings.
type Config struct {
	// TTL is how long an untouched session survives before the janitor
	// closes it. Default: 30 minutes.
	TTL time.Duration

	// SweepInterval is how often the janitor scans for idle sessions.
	// Default: 1 minute.
	SweepInterval time.Duration

	// MaxSessions caps concurrent sessions. Default: 256.
	MaxSessions int

	// Columns configures the registry created for each session.
	Columns columns.Config

	Logger  *logging.Logger
	Metrics *observability.Metrics
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Minute,
		SweepInterval: time.Minute,
		MaxSessions:   256,
		Columns:       columns.DefaultConfig(),
	}
}

func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return cfg
}

type entry struct {
	registry *columns.Registry
	lastSeen time.Time
}

// Manager tracks sessions and their column registries. All methods are
// safe for concurrent use.
type Manager struct {
	catalog columns.CatalogProvider
	fetcher columns.Fetcher
	cfg     Config
	logger  *logging.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
	done     chan struct{}
	running  bool
	closed   bool
}

// NewManager creates a manager. Call Start to run the idle janitor and
// Close during shutdown.
func NewManager(catalog columns.CatalogProvider, fetcher columns.Fetcher, cfg Config) *Manager {
	cfg = applyConfigDefaults(cfg)
	return &Manager{
		catalog:  catalog,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}
}

// Create opens a new session, bootstrapping its columns from the state
// token when one decodes, and from the catalog default otherwise.
func (m *Manager) Create(state string) (string, []datatypes.ColumnView, error) {
	tuples := statetoken.Decode(state)
	if state != "" && tuples == nil {
		m.metrics.RecordStateDecodeFailure()
		m.logger.Warn("state token did not decode, using default bootstrap",
			"token_len", len(state))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", nil, ErrManagerClosed
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return "", nil, ErrTooManySessions
	}
	// Reserve the slot before the registry bootstrap so a concurrent
	// burst of creates cannot overshoot the cap.
	id := uuid.New().String()
	m.sessions[id] = nil
	m.mu.Unlock()

	reg := columns.NewRegistry(m.catalog, m.fetcher, m.cfg.Columns)
	views, err := reg.Bootstrap(tuples)
	if err != nil {
		reg.Close()
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return "", nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		reg.Close()
		return "", nil, ErrManagerClosed
	}
	m.sessions[id] = &entry{registry: reg, lastSeen: time.Now()}
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.Info("session created",
		"session_id", id,
		"columns", len(views),
		"from_token", tuples != nil)
	return id, views, nil
}

// Get returns the session's registry and refreshes its idle clock.
func (m *Manager) Get(id string) (*columns.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.sessions[id]
	if e == nil {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = time.Now()
	return e.registry, nil
}

// Delete closes and removes the session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e := m.sessions[id]
	if e == nil {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	e.registry.Close()
	m.metrics.SessionClosed()
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the idle janitor until the context is cancelled or Stop is
// called. Only one janitor runs at a time.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.running {
		m.mu.Unlock()
		return errors.New("session janitor is already running")
	}
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("session janitor starting",
		"ttl", m.cfg.TTL.String(),
		"sweep_interval", m.cfg.SweepInterval.String())

	go m.runLoop(ctx)
	return nil
}

// Stop halts the janitor. Safe to call multiple times; live sessions
// stay open.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.done)
	m.running = false
}

// Close stops the janitor and closes every session. The manager rejects
// further creates.
func (m *Manager) Close() {
	m.Stop()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	doomed := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		if e != nil {
			doomed = append(doomed, e)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range doomed {
		e.registry.Close()
		m.metrics.SessionClosed()
	}
}

func (m *Manager) runLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if n := m.sweep(time.Now()); n > 0 {
				m.logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}

// sweep closes sessions idle longer than the TTL and reports how many
// it removed.
func (m *Manager) sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.TTL)

	m.mu.Lock()
	doomed := make([]*entry, 0)
	for id, e := range m.sessions {
		if e == nil {
			continue // create in progress
		}
		if e.lastSeen.Before(cutoff) {
			doomed = append(doomed, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range doomed {
		e.registry.Close()
		m.metrics.SessionClosed()
	}
	return len(doomed)
}
