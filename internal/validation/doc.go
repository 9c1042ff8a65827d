// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package validation wraps go-playground/validator v10 with a singleton
// instance, json-named fields and readable messages.
//
// Custom tags:
//   - syncdate: RFC3339 timestamp or YYYY-MM-DD date (see ParseDate)
//
// Failures convert to *models.ValidationError via ToModelError so the API
// layer maps them like any other domain validation failure.
package validation
