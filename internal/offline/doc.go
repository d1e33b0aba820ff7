// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package offline is the cache-first access layer between the domain facade
and the remote records service.

Every remote call goes through Access.Fetch, which decides between the
network, the response cache and the mutation log:

	online, fresh cache entry, !Fresh   -> cached entry
	online                              -> network; reads are cached
	offline or transient failure, read  -> cached entry, even if stale
	offline or transient failure, write -> queued item (QueueIfOffline)
	nothing usable                      -> ErrNoCachedData

Stale entries can be refused for selected resources with cache.max_stale
and cache.bounded_resources. Writes never consult the cache.

Replay is used by the reconciler to send a queued item with no fallback.
Read and ReadEntry decode a read into a typed value:

	classes, err := offline.ReadEntry[[]models.Class](ctx, access, offline.Request{
	    Resource: models.ResourceClasses,
	    Filters:  map[string]string{"teacher_id": teacherID},
	})
*/
package offline
