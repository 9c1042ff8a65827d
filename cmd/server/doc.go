// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package main is the entry point for the Stridesync server.

Stridesync pulls a user's activities and gear from the fitness provider,
forwards each item to the ingestion side, and ingests FIT payloads into
DuckDB (activity row, laps, stream samples) as independent background
tasks whose progress is tracked in a shared status store.

# Process Layout

	RootSupervisor ("stridesync")
	├── StorageSupervisor ("storage-layer")
	│   └── status store GC (badger only)
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── sync orchestrator
	│   └── ingestion coordinator drain
	└── APISupervisor ("api-layer")
	    └── HTTP server (chi)

Initialization order:

 1. Configuration: koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog
 3. Status store: memory, badger or redis
 4. Database: DuckDB ingestion repository
 5. Events: Watermill publisher (optional)
 6. Ingestion coordinator
 7. Forwarder: HTTP (ingestion.mode=http) or in-process (local)
 8. Sync orchestrator with the per-user rate limiter
 9. HTTP router and supervisor tree

# Configuration

	HTTP_PORT=8080
	LOG_LEVEL=info
	INTERVALS_API_KEY=<key>
	INTERVALS_API_BASE_URL=https://intervals.icu/api/v1
	INGESTION_MODE=local                      # or http
	DATA_INGESTION_SERVICE_URL=http://ingest:8080
	STATUS_STORE_BACKEND=badger               # memory, badger, redis
	REDIS_URL=redis://localhost:6379/0
	RATE_LIMIT_REQUESTS=5
	RATE_LIMIT_PERIOD=3600
	SYNC_BATCH_SIZE=10
	DUCKDB_PATH=/data/stridesync.duckdb
	EVENTS_ENABLED=true
	EVENTS_BACKEND=nats
	NATS_URL=nats://localhost:4222

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server stops
accepting requests, in-flight sync runs get a grace period to finish (runs
still going are cancelled and recorded FAILED), ingestion tasks are
drained, and the status store, database and event publisher are closed.
*/
package main
