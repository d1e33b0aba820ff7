// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/gradesync/internal/logging"
	"github.com/tomtom215/gradesync/internal/metrics"
)

// Key layout:
//
//	ref:<collection>:<scope>   reference collection snapshot
//	q:<kind>:<seq>             mutation log item, seq zero-padded so that
//	                           lexicographic order is enqueue order
//	qid:<id>                   item id -> q: key
const (
	prefixReference = "ref:"
	prefixQueue     = "q:"
	prefixQueueID   = "qid:"
	sequenceKey     = "seq:queue"

	// sequenceBandwidth is how many sequence numbers Badger leases at once.
	sequenceBandwidth = 64

	// maxConflictRetries bounds retries of a transaction that lost a
	// write-write race inside Badger.
	maxConflictRetries = 5

	// defaultPurgeBatchSize is how many items one purge transaction deletes.
	defaultPurgeBatchSize = 500
)

// Store is the durable local store: reference collections replaced wholesale
// on refresh, and the mutation log of queued writes. All data lives in one
// BadgerDB and survives restarts.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	purgeBatchSize int

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store at cfg.Path.
func Open(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	s, err := open(opts, *cfg)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Local store opened")
	return s, nil
}

// OpenForTesting opens a store in dir without validation and without fsync.
// Do not use in production code.
func OpenForTesting(dir string) (*Store, error) {
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.SyncWrites = false
	cfg.Compression = false

	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = false
	opts.MemTableSize = 16 << 20 // smaller tables fail Badger's value threshold check
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	return open(opts, cfg)
}

func open(opts badger.Options, cfg Config) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open queue sequence: %w", err)
	}

	return &Store{
		db:             db,
		seq:            seq,
		config:         cfg,
		purgeBatchSize: defaultPurgeBatchSize,
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when Badger reports a
// conflict with a concurrent transaction.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction conflict after %d attempts: %w", maxConflictRetries, err)
}

// RunGC runs value log garbage collection until there is nothing to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	metrics.StoreGCRuns.Inc()
	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}

	lsm, vlog := s.db.Size()
	metrics.StoreDBSize.Set(float64(lsm + vlog))
	return nil
}

// Close releases the sequence lease and closes BadgerDB, giving up after
// CloseTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release queue sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Local store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

// Store errors.
var (
	ErrStoreClosed   = errors.New("store is closed")
	ErrItemNotFound  = errors.New("queue item not found")
	ErrStateConflict = errors.New("queue item is not in the expected state")
	ErrKindChanged   = errors.New("queue item kind cannot change")
	ErrKindMismatch  = errors.New("queue item has the wrong kind")
)
