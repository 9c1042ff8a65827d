// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stridesync/internal/ingest"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/provider"
	"github.com/tomtom215/stridesync/internal/ratelimit"
	"github.com/tomtom215/stridesync/internal/statusstore"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
	"github.com/tomtom215/stridesync/internal/validation"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestWriteDomainError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", fmt.Errorf("get: %w", statusstore.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"request validation", &validation.RequestValidationError{Fields: []validation.FieldError{{Field: "user_id", Tag: "required", Message: "user_id is required"}}}, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"model validation", &models.ValidationError{Field: "payload", Items: []string{"a1"}, Message: "bad"}, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"rate limit", models.ErrRateLimitExceeded, http.StatusTooManyRequests, ErrCodeRateLimitExceeded},
		{"sync in progress", fmt.Errorf("claim: %w", models.ErrSyncInProgress), http.StatusConflict, ErrCodeSyncInProgress},
		{"item in progress", ingest.ErrItemInProgress, http.StatusConflict, ErrCodeItemInProgress},
		{"storage", &models.StorageError{Task: "laps", ItemID: "a1", Err: errors.New("disk full")}, http.StatusInternalServerError, ErrCodeStorage},
		{"limiter store down", fmt.Errorf("acquire rate limit: %w", ratelimit.ErrStoreUnavailable), http.StatusServiceUnavailable, ErrCodeStatusStore},
		{"status store down", &statusstore.StoreError{Op: "get", Err: errors.New("connection refused")}, http.StatusServiceUnavailable, ErrCodeStatusStore},
		{"provider transient", &provider.TransientError{Op: "list_activities", StatusCode: 503, Err: errors.New("unavailable")}, http.StatusBadGateway, ErrCodeProviderTransient},
		{"provider permanent", &provider.PermanentError{Op: "list_activities", StatusCode: 401, Err: errors.New("unauthorized")}, http.StatusBadGateway, ErrCodeProviderPermanent},
		{"orchestrator stopped", syncpkg.ErrNotRunning, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"coordinator stopped", ingest.ErrStopped, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			writeDomainError(rec, req, tt.err)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decodeResponse(t, rec)
			if resp.Success {
				t.Error("success = true, want false")
			}
			if resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestWriteDomainError_ValidationDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	writeDomainError(rec, req, &models.ValidationError{Field: "payload", Items: []string{"a2", "a3"}, Message: "2 of 3 payloads are not valid FIT activities"})

	var resp struct {
		Error struct {
			Details validationDetails `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := resp.Error.Details
	if d.Field != "payload" || len(d.Items) != 2 || d.Items[0] != "a2" {
		t.Errorf("details = %+v", d)
	}
}
