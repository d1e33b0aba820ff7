// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package store is the durable local store, backed by BadgerDB.

It holds two kinds of data:

  - reference collections (students, classes, subjects, subject assignments),
    each keyed by a scope such as a class or teacher ID and replaced wholesale
    whenever a fresh copy arrives from the remote service
  - the mutation log: queued grade, attendance, evaluation and student writes
    with their lifecycle state

Mutation log keys embed a monotonic sequence from a Badger sequence, so
iterating a kind's prefix yields items oldest first. A secondary qid: index
resolves an item ID to its key.

Claiming an item for replay is a compare-and-set inside one Badger
transaction:

	item, err := st.Transition(ctx, id, models.StatePending, models.StateSyncing, nil)
	if errors.Is(err, store.ErrStateConflict) {
	    // another pass already claimed it
	}

Compactor removes synced items once they are older than SyncedRetention and
runs value log GC. Pending, syncing and failed items are never removed.
*/
package store
