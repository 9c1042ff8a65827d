// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/stridesync/internal/logging"
)

func serveRequestID(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var requestID, correlationID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = GetRequestID(r.Context())
		correlationID = logging.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, requestID, correlationID
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	t.Parallel()

	rec, requestID, correlationID := serveRequestID(t, httptest.NewRequest(http.MethodGet, "/test", nil))

	responseID := rec.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID: %v", responseID, err)
	}
	if requestID != responseID {
		t.Errorf("context ID %q != response ID %q", requestID, responseID)
	}
	if correlationID == "" {
		t.Error("expected a correlation ID in context")
	}
}

func TestRequestID_PropagatesUpstreamIDs(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "edge-req-12345")
	req.Header.Set(HeaderCorrelationID, "trace-abc")

	rec, requestID, correlationID := serveRequestID(t, req)
	if got := rec.Header().Get(HeaderRequestID); got != "edge-req-12345" {
		t.Errorf("X-Request-ID = %q, want upstream value", got)
	}
	if requestID != "edge-req-12345" {
		t.Errorf("context request ID = %q", requestID)
	}
	if correlationID != "trace-abc" {
		t.Errorf("correlation ID = %q, want trace-abc", correlationID)
	}
}

func TestRequestID_RejectsMalformedUpstreamID(t *testing.T) {
	t.Parallel()

	tests := []string{
		"has spaces in it",
		"newline\ninjection",
		strings.Repeat("x", 129),
	}
	for _, bad := range tests {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, bad)
		rec, _, _ := serveRequestID(t, req)
		if got := rec.Header().Get(HeaderRequestID); got == bad {
			t.Errorf("malformed ID %q was echoed", bad)
		}
	}
}
