// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package services

import (
	"context"
	"fmt"
)

// StartStopper is the Start/Stop lifecycle of *store.Compactor.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// CompactorService adapts the store compactor to suture's Serve pattern.
// Stop blocks until the compaction goroutine has exited, so a restart never
// overlaps a running compaction.
type CompactorService struct {
	compactor StartStopper
	name      string
}

// NewCompactorService wraps compactor.
func NewCompactorService(compactor StartStopper) *CompactorService {
	return &CompactorService{compactor: compactor, name: "store-compactor"}
}

// Serve implements suture.Service.
func (s *CompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("store compactor start failed: %w", err)
	}
	<-ctx.Done()
	s.compactor.Stop()
	return ctx.Err()
}

func (s *CompactorService) String() string {
	return s.name
}
