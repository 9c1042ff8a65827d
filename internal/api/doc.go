// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package api exposes the sync and ingestion pipeline over HTTP.

Routes (all under /api/v1):

	POST /sync                                trigger a sync (202, 409, 429)
	GET  /sync/{user_id}/status               sync progress
	POST /ingest/activities                   multipart metadata + FIT payload parts
	GET  /ingest/activities/{item_id}/status  ingestion progress
	PUT  /ingest/gear/{gear_id}               upsert gear
	GET  /health                              dependency probes (200 or 503)
	GET  /metrics                             Prometheus exposition

Every JSON response uses the APIResponse envelope. Domain errors are mapped
to status codes in one place, writeDomainError, so handlers never choose a
status code for an error themselves.

The router is built on go-chi with go-chi/cors for CORS and go-chi/httprate
for per-IP API limiting. The per-user sync limit is separate and lives in
the ratelimit package.
*/
package api
