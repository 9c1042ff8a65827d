// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package provider is the intervals.icu API client used by the sync orchestrator.

Endpoints:

  - GET /athlete/{id}/activities?oldest=YYYY-MM-DD&newest=YYYY-MM-DD
  - GET /athlete/{id}/gear
  - GET /activity/{id}/fit-file

Authentication is HTTP basic auth with the literal username "API_KEY" and the
athlete's API key as the password.

# Resilience

Calls are layered outermost first:

 1. Circuit breaker (sony/gobreaker/v2), one per client, around the logical call
 2. RetryPolicy: bounded exponential backoff with jitter, honouring Retry-After
 3. Pacing (golang.org/x/time/rate), shared by every attempt of every run
 4. Per-request timeout

Failures are typed. TransientError (transport, timeout, 5xx, 429) is retried;
PermanentError (other 4xx, malformed JSON, oversized body) is not:

	acts, err := client.FetchActivities(ctx, "i12345", start, end)
	if provider.IsPermanent(err) {
	    // do not retry the run
	}

RetryPolicy and Do are exported because the HTTP ingestion forwarder applies
the same policy to its own calls.
*/
package provider
