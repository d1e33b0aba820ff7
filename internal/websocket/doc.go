// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package websocket streams agent events to the local UI.

A Hub owns the set of connected clients and fans out three event types:

  - connectivity: the remote service became reachable or unreachable
  - item_queued: a write entered the mutation log
  - sync_completed: a reconciliation pass finished, with its counts

Every message is a JSON object {"type": ..., "data": ...}. Clients may send
{"type":"ping"} and receive a pong, or {"type":"subscribe","data":{"types":[...]}}
to narrow the stream.

Publishing never blocks the caller. Events that do not fit in the broadcast
buffer are dropped, and a client whose own buffer fills up is disconnected.

The hub runs as a supervised service:

	hub := websocket.NewHub()
	monitor.Subscribe(hub.BroadcastConnectivity)
	go hub.Serve(ctx)
*/
package websocket
