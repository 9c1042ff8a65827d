// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package models defines the data structures shared by the sync and ingestion
halves of Stridesync.

Key Components:

  - Status: lifecycle enum shared by per-user sync and per-item ingestion
  - SyncStatus: durable progress record for one user's sync run
  - ActivityStatus: durable progress record for one ingested activity
  - Activity, Gear: provider metadata mapped to the internal schema
  - Lap, StreamSample: measurements decoded from FIT payloads

Status records are validated at the status store boundary. Every write and
every read calls Validate, so a malformed document never reaches a caller:

	st := models.NewSyncStatus(now)
	if err := st.Validate(); err != nil {
	    return err
	}

Optional provider fields are pointers. A field the provider omitted stays nil
rather than collapsing to zero, so "0 m distance" and "distance unknown" remain
distinguishable all the way into storage.

# Errors

errors.go holds the pipeline's error taxonomy. Sentinels are compared with
errors.Is and the struct types with errors.As:

	var verr *models.ValidationError
	if errors.As(err, &verr) {
	    // 422
	}
*/
package models
