// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package remote is the HTTP/JSON client for the remote records service.

	GET    /{resource}?filter=value   List
	GET    /{resource}/{id}           Get
	POST   /{resource}                Create
	PUT    /{resource}/{id}           Update
	DELETE /{resource}/{id}           Delete
	GET    /health                    Ping

Failures are classified into two kinds. ErrTransient wraps anything that may
succeed later (transport errors, timeouts, 5xx, 408, 429, an open circuit).
*RejectionError carries a definitive 4xx refusal with the service's error
code and message. Only transient failures count against the circuit breaker.
*/
package remote
