// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state persists pipeline bookkeeping in an embedded BadgerDB:
// deduplication marks with TTL, per-data-type poll cursors, and run
// locks that keep concurrent sync invocations from interleaving.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultDedupTTL is how long a record hash stays marked as seen.
// Pollers overlap their windows, so marks must outlive one cycle.
const DefaultDedupTTL = 24 * time.Hour

// Config holds configuration for the state store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for database operations.
	// If nil, the database's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and GC
// every five minutes.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the pipeline state database. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	log    *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open creates and opens a state store with the given configuration.
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
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	s := &Store{db: db, log: cfg.Logger}
	if s.log == nil {
		s.log = slog.Default().With("component", "state")
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func seenKey(dataType, hash string) []byte {
	return []byte("seen/" + dataType + "/" + hash)
}

func pollKey(dataType string) []byte {
	return []byte("poll/" + dataType)
}

func lockKey(name string) []byte {
	return []byte("lock/" + name)
}

// MarkSeen records a content hash for dataType with the given TTL.
//
// Description:
//
//	Returns true when the hash was not already present, meaning the
//	caller is seeing this record for the first time within the TTL
//	window. The check and write run in one transaction, so two
//	concurrent pollers cannot both claim first sight.
//
// Inputs:
//
//	ctx - Cancellation context
//	dataType - Record family (trips, locations, ...)
//	hash - Stable content hash of the record
//	ttl - Mark lifetime; DefaultDedupTTL when <= 0
//
// Outputs:
//
//	bool - True when newly marked
//	error - Storage failure
func (s *Store) MarkSeen(ctx context.Context, dataType, hash string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	first := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(seenKey(dataType, hash))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		first = true
		entry := badger.NewEntry(seenKey(dataType, hash), []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			// Another writer claimed the mark first.
			return false, nil
		}
		return false, fmt.Errorf("mark seen %s: %w", dataType, err)
	}
	return first, nil
}

// Seen reports whether a hash is currently marked for dataType.
func (s *Store) Seen(ctx context.Context, dataType, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(seenKey(dataType, hash))
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check seen %s: %w", dataType, err)
	}
	return found, nil
}

// SeenCount counts currently marked hashes for dataType.
func (s *Store) SeenCount(ctx context.Context, dataType string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	prefix := []byte("seen/" + dataType + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count seen %s: %w", dataType, err)
	}
	return count, nil
}

// SetLastPoll records the end of the most recent poll window for dataType.
func (s *Store) SetLastPoll(ctx context.Context, dataType string, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pollKey(dataType), []byte(t.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("set last poll %s: %w", dataType, err)
	}
	return nil
}

// LastPoll returns the recorded poll cursor for dataType, if any.
func (s *Store) LastPoll(ctx context.Context, dataType string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pollKey(dataType))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last poll %s: %w", dataType, err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last poll %s: %w", dataType, err)
	}
	return ts, true, nil
}

// AcquireLock takes a named run lock with a lease TTL.
//
// Description:
//
//	Returns true when the lock was free. A crashed holder's lease
//	expires on its own, so a stale lock cannot wedge the pipeline
//	permanently.
func (s *Store) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(lockKey(name))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		acquired = true
		entry := badger.NewEntry(lockKey(name), []byte(owner)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// ReleaseLock drops a named run lock if owner still holds it.
func (s *Store) ReleaseLock(ctx context.Context, name, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(lockKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(val) != owner {
			// Lease expired and was re-acquired; leave it alone.
			return nil
		}
		return txn.Delete(lockKey(name))
	})
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
