// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/models"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
	"github.com/tomtom215/stridesync/internal/validation"
)

// maxSyncBodyBytes caps the JSON body of a sync trigger.
const maxSyncBodyBytes = 64 << 10

// TriggerSync starts a sync for one user.
//
// @Summary Trigger a sync
// @Description Claims the user's sync and runs it in the background. Poll the status endpoint for progress.
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body models.SyncRequest true "Sync request"
// @Success 202 {object} APIResponse{data=models.SyncStatus}
// @Failure 400 {object} APIResponse "Malformed body"
// @Failure 409 {object} APIResponse "Sync already in progress"
// @Failure 422 {object} APIResponse "Validation failed"
// @Failure 429 {object} APIResponse "Rate limit exceeded"
// @Failure 503 {object} APIResponse "Status store unavailable"
// @Router /sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.SyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBodyBytes))
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeDomainError(w, r, verr)
		return
	}

	treq := syncpkg.TriggerRequest{UserID: req.UserID}
	if req.StartDate != "" {
		treq.StartDate, _ = validation.ParseDate(req.StartDate)
	}
	if req.EndDate != "" {
		treq.EndDate, _ = validation.ParseDate(req.EndDate)
	}
	if !treq.StartDate.IsZero() && !treq.EndDate.IsZero() && treq.EndDate.Before(treq.StartDate) {
		writeDomainError(w, r, &models.ValidationError{Field: "end_date", Message: "end_date must not be before start_date"})
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), req.UserID)
	st, err := h.sync.Trigger(ctx, treq)
	if err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			w.Header().Set("Retry-After", retryAfterSeconds(h.sync.RetryAfter()))
		}
		writeDomainError(w, r, err)
		return
	}
	rw.Accepted(st)
}

// SyncStatus returns a user's sync progress.
//
// @Summary Get sync status
// @Tags Sync
// @Produce json
// @Param user_id path string true "Provider user ID"
// @Success 200 {object} APIResponse{data=models.SyncStatus}
// @Failure 404 {object} APIResponse "User has never synced"
// @Router /sync/{user_id}/status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	st, err := h.sync.Status(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(st)
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
