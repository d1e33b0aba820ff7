// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package api serves the local HTTP API the school records UI and operators
talk to. It listens on loopback by default.

Every endpoint except /metrics and the WebSocket answers with the same
envelope:

	{
	  "status": "success",
	  "data": ...,
	  "metadata": {"timestamp": "...", "from_cache": true, "cached_at": "..."}
	}

Reads report whether they were served from the local copy. Writes answer
201 when the remote service confirmed them and 202 when they were queued;
in both cases the write is durable. Network failures never surface as
errors on the write path. Validation failures are 400 with per-field
details, and a read with no network and no local copy is 503
NO_CACHED_DATA.

Routes:

	GET    /api/v1/health                 agent, connectivity and queue health
	GET    /api/v1/students?class_id=     roster
	POST   /api/v1/students               create or update a student
	GET    /api/v1/classes?teacher_id=
	GET    /api/v1/subjects
	GET    /api/v1/assignments
	POST   /api/v1/grades                 PUT/DELETE /api/v1/grades/{id}
	POST   /api/v1/attendance             PUT /api/v1/attendance/{id}
	POST   /api/v1/evaluations            PUT /api/v1/evaluations/{id}
	POST   /api/v1/preload?teacher_id=
	GET    /api/v1/sync/status
	POST   /api/v1/sync/run
	POST   /api/v1/sync/retry
	GET    /api/v1/queue?kind=&state=&limit=
	GET    /api/v1/queue/{id}
	GET    /api/v1/ws                     event stream
	GET    /metrics                       Prometheus

The middleware stack is chi's: request IDs tied into the logging context,
RealIP, Recoverer, go-chi/cors for the UI origin, go-chi/httprate per-IP
limits and Prometheus request metrics labelled by route pattern.
*/
package api
