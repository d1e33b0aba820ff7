// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

// Package services adapts agent components to suture.Service.
//
// Run loops (monitor, reconciler, cache sweeper) use RunnerService. The store
// compactor's Start/Stop pair uses CompactorService. The event hub and the
// HTTP server have their own wrappers, and PreloadService warms reference
// data at startup and after every reconnect.
package services
