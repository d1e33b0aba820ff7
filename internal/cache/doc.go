// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package cache provides the in-memory response cache used by the offline
access layer.

Entries are keyed by request identity (see Key) and carry the time they were
stored. An entry is fresh while its age is below the TTL. Get only returns
fresh entries; GetStale returns whatever is present so that the access layer
can fall back to old data when the remote service cannot be reached.

The cache is bounded by MaxEntries, evicting the oldest entry first, and Run
periodically drops entries older than PurgeAfter.

# Usage

	c := cache.New(cache.Config{TTL: 5 * time.Minute, MaxEntries: 1000})
	key := cache.Key("students", "", map[string]string{"class_id": "c1"})
	c.Set(key, body)
	if e, ok := c.Get(key); ok {
	    // fresh
	}
	if e, fresh, ok := c.GetStale(key); ok && !fresh {
	    // stale fallback
	}
*/
package cache
