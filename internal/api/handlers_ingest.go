// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/stridesync/internal/ingest"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/models"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
)

// multipartMemory is how much of a multipart body is held in memory before
// file parts spill to disk.
const multipartMemory = 32 << 20

const maxIdempotencyKeyLen = 128

// batchDetails carries the statuses of items a rejected batch had already
// claimed.
type batchDetails struct {
	Statuses []models.ActivityStatus `json:"statuses"`
}

// IngestActivities accepts one or more activities. The request carries N
// "metadata" parts (JSON) and N "payload" parts (FIT), matched by position.
//
// @Summary Submit activities for ingestion
// @Description Validates every payload, then schedules the ingestion tasks of each item in the background.
// @Tags Ingestion
// @Accept multipart/form-data
// @Produce json
// @Param metadata formData string true "Activity metadata JSON (repeatable)"
// @Param payload formData file true "FIT payload (repeatable)"
// @Param Idempotency-Key header string false "Repeats of the same key return the recorded statuses"
// @Success 202 {object} APIResponse{data=[]models.ActivityStatus}
// @Failure 400 {object} APIResponse "Malformed multipart body"
// @Failure 409 {object} APIResponse "Item already in progress"
// @Failure 422 {object} APIResponse "Invalid metadata or payload"
// @Router /ingest/activities [post]
func (h *Handler) IngestActivities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		rw.BadRequest("invalid multipart body: " + err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}()

	activities, err := decodeMetadata(r.MultipartForm.Value[syncpkg.PartMetadata])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	payloads, err := readPayloads(r.MultipartForm.File[syncpkg.PartPayload])
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	key := r.Header.Get(syncpkg.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		rw.BadRequest(fmt.Sprintf("%s exceeds %d characters", syncpkg.HeaderIdempotencyKey, maxIdempotencyKeyLen))
		return
	}

	statuses, err := h.ingest.SubmitBatch(r.Context(), key, activities, payloads)
	if err != nil {
		if errors.Is(err, ingest.ErrItemInProgress) && len(statuses) > 0 {
			rw.ErrorWithDetails(http.StatusConflict, ErrCodeItemInProgress, err.Error(), batchDetails{Statuses: statuses})
			return
		}
		writeDomainError(w, r, err)
		return
	}
	rw.Accepted(statuses)
}

// decodeMetadata decodes each metadata part. A part that is not valid JSON
// fails the whole request before anything is scheduled.
func decodeMetadata(parts []string) ([]models.Activity, error) {
	out := make([]models.Activity, len(parts))
	for i, p := range parts {
		if err := json.Unmarshal([]byte(p), &out[i]); err != nil {
			return nil, &models.ValidationError{
				Field:   syncpkg.PartMetadata,
				Message: fmt.Sprintf("metadata part %d is not valid JSON: %v", i, err),
			}
		}
	}
	return out, nil
}

func readPayloads(files []*multipart.FileHeader) ([][]byte, error) {
	out := make([][]byte, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open payload part %d: %w", i, err)
		}
		out[i], err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read payload part %d: %w", i, err)
		}
	}
	return out, nil
}

// UpsertGear stores one gear record. The path ID wins over an empty body ID;
// a conflicting body ID is rejected.
//
// @Summary Upsert gear
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param gear_id path string true "Gear ID"
// @Param gear body models.Gear true "Gear"
// @Success 202 {object} APIResponse{data=models.Gear}
// @Failure 400 {object} APIResponse "Malformed body"
// @Failure 422 {object} APIResponse "Validation failed"
// @Router /ingest/gear/{gear_id} [put]
func (h *Handler) UpsertGear(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	gearID := chi.URLParam(r, "gear_id")

	var gear models.Gear
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBodyBytes)).Decode(&gear); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	switch {
	case gear.ID == "":
		gear.ID = gearID
	case gear.ID != gearID:
		writeDomainError(w, r, &models.ValidationError{Field: "id", Message: "body id does not match path gear_id"})
		return
	}

	if err := h.ingest.UpsertGear(r.Context(), gear); err != nil {
		writeDomainError(w, r, err)
		return
	}
	rw.Accepted(gear)
}

// ActivityStatus returns the ingestion progress of one item.
//
// @Summary Get activity ingestion status
// @Tags Ingestion
// @Produce json
// @Param item_id path string true "Activity ID"
// @Success 200 {object} APIResponse{data=models.ActivityStatus}
// @Failure 404 {object} APIResponse "Unknown item"
// @Router /ingest/activities/{item_id}/status [get]
func (h *Handler) ActivityStatus(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	st, err := h.ingest.Status(logging.ContextWithItemID(r.Context(), itemID), itemID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(st)
}
