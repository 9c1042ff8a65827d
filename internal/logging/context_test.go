// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestContextIdentifiers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithUserID(ctx, "i100")
	ctx = ContextWithItemID(ctx, "a200")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := CorrelationIDFromContext(ctx); got != "corr-1" {
		t.Errorf("CorrelationIDFromContext = %q", got)
	}
	if got := UserIDFromContext(ctx); got != "i100" {
		t.Errorf("UserIDFromContext = %q", got)
	}
	if got := ItemIDFromContext(ctx); got != "a200" {
		t.Errorf("ItemIDFromContext = %q", got)
	}
}

func TestContextIdentifiers_Missing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" || UserIDFromContext(ctx) != "" || ItemIDFromContext(ctx) != "" {
		t.Error("expected empty identifiers on bare context")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 char correlation ID, got %q", a)
	}
	if a == b {
		t.Error("expected unique correlation IDs")
	}
}

func TestCtx_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithUserID(ContextWithRequestID(context.Background(), "req-9"), "i9")
	Ctx(ctx).Info().Msg("polled")

	out := buf.String()
	for _, want := range []string{`"request_id":"req-9"`, `"user_id":"i9"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "item_id") {
		t.Errorf("item_id should be omitted when absent: %s", out)
	}
}
