// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package reconciler replays the durable mutation log against the remote
service.

A pass walks every entity kind concurrently and, within a kind, replays
pending items oldest first. Each item is claimed with an atomic
pending -> syncing transition, so an item is never sent twice even when the
records facade attempts an immediate sync at the same moment. A successful
replay marks the item synced and adopts the identity the remote service
assigned; a failed one marks it failed with the error and an incremented
retry count. One failure never stops the rest of the batch.

Passes are single-flight. A trigger that arrives while a pass is running
returns a Result with Skipped set and leaves the queue untouched.

Passes start from:

  - Sync and RetryFailed, called by the local API
  - every offline to online edge reported by the connectivity monitor
  - startup, when SyncOnStartup is set and the service is reachable
  - the retry ticker, which resets failed items whose exponential backoff
    has elapsed and that are still under MaxRetries

Run is the service body and is meant to be supervised. On its first start
it returns items interrupted mid-replay by a crash to pending.
*/
package reconciler
