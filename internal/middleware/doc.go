// Gradesync - Offline-first school records sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gradesync

/*
Package middleware provides the HTTP middleware shared by the local API.

  - RequestID: assigns or propagates X-Request-ID and puts request and
    correlation IDs on the context for structured logging
  - PrometheusMetrics: records request counts and latency by method, route
    pattern and status code

Both are plain func(http.Handler) http.Handler and compose with chi:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Metrics are labelled with the chi route pattern ("/api/v1/grades/{id}")
rather than the raw path, so record IDs never become label values.
*/
package middleware
