// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// General API annotations for swag. Regenerate the docs package with
//
//	swag init -g cmd/server/docs.go -o docs
//
// @title Stridesync API
// @version 1.0
// @description Syncs fitness activities and gear from the provider and ingests FIT payloads in the background.
// @description
// @description ## Rate Limiting
// @description
// @description Sync triggers are limited per user (RATE_LIMIT_REQUESTS per RATE_LIMIT_PERIOD).
// @description API routes other than health and metrics are also limited per client IP.
// @description
// @description ## Idempotency
// @description
// @description POST /ingest/activities accepts an Idempotency-Key header. A repeated request with the
// @description same key returns the statuses recorded for the first one instead of scheduling again.
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/stridesync/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
//
// @tag.name Core
// @tag.description Health and metrics endpoints
//
// @tag.name Sync
// @tag.description Per-user activity and gear sync from the fitness provider
//
// @tag.name Ingestion
// @tag.description Activity payload ingestion and gear upserts
package main
