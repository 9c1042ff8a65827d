// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: assigns or propagates X-Request-ID and a correlation ID, and
    stores both in the logging context
  - PrometheusMetrics: request counts and latency labelled by chi route
    pattern, never by raw path

Both are standard func(http.Handler) http.Handler middleware and plug into
chi directly:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Handlers read the request ID with GetRequestID or logging.Ctx(r.Context()).
*/
package middleware
