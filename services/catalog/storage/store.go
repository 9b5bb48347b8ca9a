// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the embedded result-payload store on BadgerDB.
//
// The builder writes one payload per (experiment, scenario, scene) under
// its result ref; the browse service reads payloads by ref at fetch time.
// Access is low-latency (~100µs) and safe for concurrent use, which keeps
// per-column fetches independent.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
)

// resultPrefix namespaces payload keys so future record types can share
// the database.
const resultPrefix = "result/"

// Sentinel errors for store operations.
var (
	// ErrResultNotFound is returned when no payload exists under a ref.
	ErrResultNotFound = errors.New("result not found")

	// ErrEmptyRef is returned for reads or writes with an empty ref.
	ErrEmptyRef = errors.New("result ref is empty")
)

// Config holds configuration for the result store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability. The builder
	// disables it for bulk writes and syncs once at the end.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes, GC every
// 5 minutes at a 50% discard threshold.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// BuildConfig returns defaults for bulk catalog builds: asynchronous
// writes, no background GC. Callers sync once via Close.
func BuildConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: false,
	}
}

// InMemoryConfig returns configuration for testing: in-memory mode, no
// sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// storeLogger adapts slog.Logger to BadgerDB's Logger interface.
type storeLogger struct {
	logger *slog.Logger
}

func (l *storeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the result-payload store. Safe for concurrent use.
type Store struct {
	db       *badger.DB
	inMemory bool
	path     string

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB at the configured path, or in memory when InMemory
//	is set, creating the directory if needed. Starts the background GC
//	loop when GCInterval is positive and the store is persistent.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: The returned Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&storeLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	s := &Store{
		db:       db,
		inMemory: cfg.InMemory,
		path:     cfg.Path,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for testing. Data is lost on
// Close.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database. For persistent
// stores, pending writes are synced first.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	if !s.inMemory {
		if err := s.db.Sync(); err != nil {
			return fmt.Errorf("sync result store: %w", err)
		}
	}
	return s.db.Close()
}

// Path returns the store directory, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// PutResult stores a payload under its ref, replacing any previous value.
//
// Inputs:
//
//	ctx - Context for cancellation checks before the write.
//	ref - Result ref ("{experiment key}/{scenario}/{scene}").
//	result - Payload to store. Must not be nil.
//
// Outputs:
//
//	error - Non-nil for an empty ref, a cancelled context, or a write
//	failure.
func (s *Store) PutResult(ctx context.Context, ref string, result *datatypes.DecisionResult) error {
	if ref == "" {
		return ErrEmptyRef
	}
	if result == nil {
		return errors.New("result must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", ref, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(resultPrefix+ref), data)
	})
	if err != nil {
		return fmt.Errorf("store result %s: %w", ref, err)
	}
	return nil
}

// GetResult retrieves the payload stored under a ref.
//
// Inputs:
//
//	ctx - Context for cancellation checks before the read.
//	ref - Result ref.
//
// Outputs:
//
//	*datatypes.DecisionResult - The stored payload.
//	error - ErrResultNotFound when no payload exists under the ref;
//	otherwise a read or decode failure.
func (s *Store) GetResult(ctx context.Context, ref string) (*datatypes.DecisionResult, error) {
	if ref == "" {
		return nil, ErrEmptyRef
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var result datatypes.DecisionResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resultPrefix + ref))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrResultNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if err != nil {
		if errors.Is(err, ErrResultNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, ref)
		}
		return nil, fmt.Errorf("load result %s: %w", ref, err)
	}
	return &result, nil
}

// CountResults returns the number of stored payloads. Key-only scan; no
// values are loaded.
func (s *Store) CountResults(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte(resultPrefix),
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}

// ListRefs returns up to limit stored refs with the given ref prefix, in
// key order. A limit of 0 means no limit.
func (s *Store) ListRefs(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var refs []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte(resultPrefix + prefix),
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(refs) >= limit {
				return nil
			}
			key := it.Item().Key()
			refs = append(refs, string(key[len(resultPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// gcLoop runs periodic value log garbage collection until Close.
func (s *Store) gcLoop(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err == nil {
				if logger != nil {
					logger.Debug("result store value log GC completed")
				}
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				// ErrNoRewrite means nothing to collect, not a failure.
				if logger != nil {
					logger.Warn("result store value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}
}
