// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package events publishes pipeline lifecycle events through Watermill.

Two events are emitted, each as a JSON message on {prefix}.{name}:

  - sync.completed: a user's sync run reached COMPLETED or FAILED
  - activity.ingested: an ingested item reached COMPLETED or FAILED

The backend is either the in-process gochannel pub/sub (default) or NATS.
Publishing goes through a circuit breaker. Publish failures are logged
by callers and never change pipeline state.
*/
package events
