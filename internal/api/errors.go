// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/stridesync/internal/ingest"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/provider"
	"github.com/tomtom215/stridesync/internal/ratelimit"
	"github.com/tomtom215/stridesync/internal/statusstore"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
	"github.com/tomtom215/stridesync/internal/validation"
)

// validationDetails is the details object of a VALIDATION_ERROR response.
type validationDetails struct {
	Field  string                  `json:"field,omitempty"`
	Items  []string                `json:"items,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

// writeDomainError maps the error taxonomy to status codes and error codes.
// It is the only place handlers turn a domain error into a response.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)

	var (
		reqErr   *validation.RequestValidationError
		valErr   *models.ValidationError
		storErr  *models.StorageError
		transErr *provider.TransientError
		permErr  *provider.PermanentError
	)

	switch {
	case errors.Is(err, statusstore.ErrNotFound):
		rw.NotFound("not found")

	case errors.As(err, &reqErr):
		rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeValidation, reqErr.Error(),
			validationDetails{Fields: reqErr.Fields})

	case errors.As(err, &valErr):
		rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeValidation, valErr.Error(),
			validationDetails{Field: valErr.Field, Items: valErr.Items})

	case errors.Is(err, models.ErrRateLimitExceeded):
		rw.Error(http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "sync rate limit exceeded, try again later")

	case errors.Is(err, models.ErrSyncInProgress):
		rw.Error(http.StatusConflict, ErrCodeSyncInProgress, err.Error())

	case errors.Is(err, ingest.ErrItemInProgress):
		rw.Error(http.StatusConflict, ErrCodeItemInProgress, err.Error())

	case errors.As(err, &storErr):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Storage error")
		rw.Error(http.StatusInternalServerError, ErrCodeStorage, "a storage error occurred")

	case errors.Is(err, ratelimit.ErrStoreUnavailable), statusstore.IsUnavailable(err):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Status store error")
		rw.Error(http.StatusServiceUnavailable, ErrCodeStatusStore, "status store unavailable")

	case errors.As(err, &transErr):
		rw.Error(http.StatusBadGateway, ErrCodeProviderTransient, err.Error())

	case errors.As(err, &permErr):
		rw.Error(http.StatusBadGateway, ErrCodeProviderPermanent, err.Error())

	case errors.Is(err, syncpkg.ErrNotRunning), errors.Is(err, ingest.ErrStopped):
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "service is shutting down")

	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Unhandled API error")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
