// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// CacheEntry is a decoded read result with its provenance.
type CacheEntry[T any] struct {
	Data        T         `json:"data"`
	IsFromCache bool      `json:"is_from_cache"`
	CachedAt    time.Time `json:"cached_at"`
}

// ReadEntry runs a read through a and decodes the body into T.
func ReadEntry[T any](ctx context.Context, a *Access, req Request) (CacheEntry[T], error) {
	var entry CacheEntry[T]
	req.Method = ""

	res, err := a.Fetch(ctx, req)
	if err != nil {
		return entry, err
	}
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &entry.Data); err != nil {
			return entry, fmt.Errorf("decode %s: %w", req.Resource, err)
		}
	}
	entry.IsFromCache = res.IsFromCache
	entry.CachedAt = res.CachedAt
	return entry, nil
}

// Read is ReadEntry without provenance.
func Read[T any](ctx context.Context, a *Access, req Request) (T, error) {
	entry, err := ReadEntry[T](ctx, a, req)
	return entry.Data, err
}
