// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/gradesync/internal/logging"
)

// Compactor periodically drops synced items older than the retention window
// and reclaims value log space.
type Compactor struct {
	store  *Store
	config Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	lastRun    time.Time
	lastPurged int
}

// CompactorStats describes the most recent compaction.
type CompactorStats struct {
	LastRun    time.Time `json:"last_run"`
	LastPurged int       `json:"last_purged"`
}

// NewCompactor creates a compactor for s.
func NewCompactor(s *Store) *Compactor {
	return &Compactor{store: s, config: s.Config()}
}

// Start runs the compaction loop in the background until ctx is done or Stop
// is called. Starting a running compactor is a no-op.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx)

	logging.Info().Dur("interval", c.config.CompactInterval).Msg("Store compactor started")
	return nil
}

// Stop ends the loop and waits for an in-progress run.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Store compactor stopped")
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Compactor) run(ctx context.Context) {
	defer c.wg.Done()

	interval := c.config.CompactInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.compact(ctx)
		}
	}
}

func (c *Compactor) compact(ctx context.Context) int {
	start := time.Now()
	cutoff := start.Add(-c.config.SyncedRetention)

	purged, err := c.store.PurgeSynced(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Compaction failed to purge synced items")
	}
	if err := c.store.RunGC(); err != nil {
		logging.Error().Err(err).Msg("Compaction GC error")
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.lastPurged = purged
	c.mu.Unlock()

	if purged > 0 {
		logging.Info().
			Int("purged", purged).
			Dur("duration", time.Since(start)).
			Msg("Compaction removed synced items")
	}
	return purged
}

// RunNow compacts immediately and returns the number of purged items.
func (c *Compactor) RunNow(ctx context.Context) int {
	return c.compact(ctx)
}

// Stats returns the outcome of the last run.
func (c *Compactor) Stats() CompactorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CompactorStats{LastRun: c.lastRun, LastPurged: c.lastPurged}
}
