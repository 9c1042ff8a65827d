// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/provider"
)

// Operation names used in errors and retry metrics.
const (
	OpForwardActivity = "forward_activity"
	OpForwardGear     = "forward_gear"
)

// Multipart field names of the ingestion endpoint.
const (
	PartMetadata = "metadata"
	PartPayload  = "payload"
)

// HeaderIdempotencyKey makes an ingestion request repeatable. Every attempt
// of one forward carries the same key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HTTPForwarder posts items to a remote ingestion service.
type HTTPForwarder struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	policy         provider.RetryPolicy
}

// NewHTTPForwarder targets cfg.URL and retries with policy, the same policy
// the provider client uses.
func NewHTTPForwarder(cfg config.IngestionConfig, policy provider.RetryPolicy) *HTTPForwarder {
	return &HTTPForwarder{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		httpClient:     &http.Client{},
		requestTimeout: cfg.RequestTimeout,
		policy:         policy,
	}
}

// ForwardActivity sends one metadata part and one payload part. A 202 whose
// item status is not FAILED is success; a 422 is a permanent failure.
// Attempts share an idempotency key, so a retry after a lost reply returns
// the first attempt's status instead of scheduling the item again. A 409 on
// a retry means an earlier attempt already owns the item and is accepted.
func (f *HTTPForwarder) ForwardActivity(ctx context.Context, activity models.Activity, payload []byte) error {
	body, contentType, err := encodeActivity(activity, payload)
	if err != nil {
		return &provider.PermanentError{Op: OpForwardActivity, Err: err}
	}
	key := uuid.NewString()

	attempt := 0
	statuses, err := provider.Do(ctx, f.policy, OpForwardActivity, func(ctx context.Context) ([]models.ActivityStatus, error) {
		attempt++
		resp, err := f.send(ctx, OpForwardActivity, http.MethodPost, "/api/v1/ingest/activities", contentType, body,
			http.Header{HeaderIdempotencyKey: []string{key}})
		var perm *provider.PermanentError
		if errors.As(err, &perm) && perm.StatusCode == http.StatusConflict && attempt > 1 {
			logging.Ctx(ctx).Debug().
				Str("item_id", activity.ID).
				Int("attempt", attempt).
				Msg("Item already owned by an earlier attempt, treating as accepted")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var envelope struct {
			Data []models.ActivityStatus `json:"data"`
		}
		if len(resp) > 0 {
			if err := json.Unmarshal(resp, &envelope); err != nil {
				return nil, &provider.PermanentError{Op: OpForwardActivity, Err: fmt.Errorf("decode response: %w", err)}
			}
		}
		return envelope.Data, nil
	})
	if err != nil {
		return err
	}

	for _, st := range statuses {
		if st.ItemID == activity.ID && st.Status == models.StatusFailed {
			msg := "rejected at ingestion"
			if st.ErrorMessage != nil {
				msg = *st.ErrorMessage
			}
			return &provider.PermanentError{Op: OpForwardActivity, Err: fmt.Errorf("activity %s: %s", activity.ID, msg)}
		}
	}
	return nil
}

// ForwardGear PUTs gear as JSON.
func (f *HTTPForwarder) ForwardGear(ctx context.Context, gear models.Gear) error {
	body, err := json.Marshal(gear)
	if err != nil {
		return &provider.PermanentError{Op: OpForwardGear, Err: fmt.Errorf("encode gear: %w", err)}
	}
	_, err = provider.Do(ctx, f.policy, OpForwardGear, func(ctx context.Context) ([]byte, error) {
		return f.send(ctx, OpForwardGear, http.MethodPut, "/api/v1/ingest/gear/"+url.PathEscape(gear.ID), "application/json", body, nil)
	})
	return err
}

// send performs one attempt. body is reused across attempts, so each
// attempt reads it through a fresh reader.
func (f *HTTPForwarder) send(ctx context.Context, op, method, path, contentType string, body []byte, header http.Header) ([]byte, error) {
	reqCtx := ctx
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.PermanentError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransport(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, provider.ClassifyTransport(ctx, op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, provider.ClassifyStatus(op, resp, respBody)
	}
	return respBody, nil
}

// encodeActivity builds the multipart body for a single item.
func encodeActivity(activity models.Activity, payload []byte) ([]byte, string, error) {
	meta, err := json.Marshal(activity)
	if err != nil {
		return nil, "", fmt.Errorf("encode metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, PartMetadata))
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", err
	}

	fw, err := mw.CreateFormFile(PartPayload, activity.ID+".fit")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// Ingester is the in-process ingestion boundary.
type Ingester interface {
	Submit(ctx context.Context, activity models.Activity, payload []byte) (models.ActivityStatus, error)
	UpsertGear(ctx context.Context, gear models.Gear) error
}

// LocalForwarder hands items straight to an in-process coordinator.
type LocalForwarder struct {
	ingester Ingester
}

// NewLocalForwarder forwards to ingester.
func NewLocalForwarder(ingester Ingester) *LocalForwarder {
	return &LocalForwarder{ingester: ingester}
}

// ForwardActivity submits the item; a FAILED status at acceptance is an error.
func (f *LocalForwarder) ForwardActivity(ctx context.Context, activity models.Activity, payload []byte) error {
	st, err := f.ingester.Submit(ctx, activity, payload)
	if err != nil {
		return fmt.Errorf("submit %s: %w", activity.ID, err)
	}
	if st.Status == models.StatusFailed {
		msg := "rejected"
		if st.ErrorMessage != nil {
			msg = *st.ErrorMessage
		}
		return fmt.Errorf("submit %s: %s", activity.ID, msg)
	}
	return nil
}

// ForwardGear upserts gear synchronously.
func (f *LocalForwarder) ForwardGear(ctx context.Context, gear models.Gear) error {
	return f.ingester.UpsertGear(ctx, gear)
}
