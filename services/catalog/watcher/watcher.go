// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher owns the live catalog snapshot: it loads the manifest
// once at startup and, when watching is enabled, reloads it whenever the
// file changes on disk and swaps the index atomically.
//
// # Snapshot Contract
//
// Snapshot returns an immutable index; callers resolve and fetch against
// the one they were handed, so a swap mid-edit is safe. Columns pick up
// a new catalog on their next edit. A failed reload keeps the previous
// snapshot.
//
// # Debouncing
//
// Builders replace the manifest with a burst of filesystem events
// (temp-write, rename, chmod). Events are debounced so one rebuild
// triggers one reload.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/index"
	"github.com/AleutianAI/AlignScope/services/catalog/observability"
)

// ErrAlreadyWatching means Watch was called twice.
var ErrAlreadyWatching = errors.New("watcher: already watching")

// Options configures a Catalog.
type Options struct {
	// DebounceWindow is how long to wait after the last manifest event
	// before reloading. Default: 500ms.
	DebounceWindow time.Duration

	// Logger receives load and watch events. Default: logging.Default().
	Logger *logging.Logger

	// Metrics receives reload counters and the record gauge. May be nil.
	Metrics *observability.Metrics
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond}
}

// snapshot pairs an index with the manifest it was flattened from.
type snapshot struct {
	index    *index.Index
	manifest *datatypes.Manifest
}

// Catalog holds the current catalog snapshot for the browse service.
// Create with New, optionally start Watch, release with Stop.
type Catalog struct {
	manifestPath string
	debounce     time.Duration
	logger       *logging.Logger
	metrics      *observability.Metrics

	current atomic.Pointer[snapshot]

	fw       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New loads the manifest once and returns the catalog holder. The
// initial load must succeed; a service with no catalog cannot serve.
func New(manifestPath string, opts Options) (*Catalog, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}

	c := &Catalog{
		manifestPath: abs,
		debounce:     opts.DebounceWindow,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		done:         make(chan struct{}),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot returns the current immutable index.
func (c *Catalog) Snapshot() *index.Index {
	return c.current.Load().index
}

// Manifest returns the manifest behind the current snapshot.
func (c *Catalog) Manifest() *datatypes.Manifest {
	return c.current.Load().manifest
}

// Reload reads the manifest from disk and swaps the snapshot. On error
// the previous snapshot stays in place.
func (c *Catalog) Reload() error {
	ix, m, err := index.LoadFromFile(c.manifestPath)
	c.metrics.RecordCatalogLoad(ixLen(ix), err)
	if err != nil {
		c.logger.Warn("catalog reload failed, keeping previous snapshot",
			"manifest", c.manifestPath, "error", err.Error())
		return err
	}
	c.current.Store(&snapshot{index: ix, manifest: m})
	c.logger.Info("catalog loaded",
		"manifest", c.manifestPath,
		"experiments", m.Metadata.TotalExperiments,
		"records", ix.Len(),
	)
	return nil
}

func ixLen(ix *index.Index) int {
	if ix == nil {
		return 0
	}
	return ix.Len()
}

// Watch reloads the catalog whenever the manifest file changes, until
// ctx is canceled or Stop is called. Events are debounced; removals are
// ignored so a delete-then-recreate rebuild never drops the catalog.
func (c *Catalog) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.watching {
		c.mu.Unlock()
		return ErrAlreadyWatching
	}
	c.watching = true
	c.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		c.setWatching(false)
		return fmt.Errorf("starting manifest watcher: %w", err)
	}
	// Watch the directory, not the file: rebuilds replace the file and
	// inode-level watches die on rename.
	if err := fw.Add(filepath.Dir(c.manifestPath)); err != nil {
		fw.Close()
		c.setWatching(false)
		return fmt.Errorf("watching %s: %w", filepath.Dir(c.manifestPath), err)
	}
	c.fw = fw

	go c.watchLoop(ctx)
	c.logger.Info("catalog watch started", "manifest", c.manifestPath, "debounce", c.debounce.String())
	return nil
}

// Stop ends watching. The last snapshot stays available.
func (c *Catalog) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.fw != nil {
			c.fw.Close()
		}
		c.setWatching(false)
	})
}

func (c *Catalog) setWatching(v bool) {
	c.mu.Lock()
	c.watching = v
	c.mu.Unlock()
}

// watchLoop batches manifest events and reloads after the debounce
// window.
func (c *Catalog) watchLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(c.debounce)
			timerC = timer.C
			return
		}
		timer.Reset(c.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case event, ok := <-c.fw.Events:
			if !ok {
				return
			}
			if !c.isManifestEvent(event) {
				continue
			}
			arm()

		case err, ok := <-c.fw.Errors:
			if !ok {
				return
			}
			c.logger.Warn("manifest watch error", "error", err.Error())

		case <-timerC:
			if err := c.Reload(); err == nil {
				c.logger.Info("catalog hot reload applied", "manifest", c.manifestPath)
			}
		}
	}
}

// isManifestEvent reports whether the event touches the manifest file
// with an op that can change its content.
func (c *Catalog) isManifestEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != c.manifestPath {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}
