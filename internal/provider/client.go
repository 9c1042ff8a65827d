// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/models"
)

// Operation names used in errors, logs, and metric labels.
const (
	OpFetchActivities = "fetch_activities"
	OpFetchGear       = "fetch_gear"
	OpFetchPayload    = "fetch_fit_file"
)

// defaultLookback applies when FetchActivities gets no start date.
const defaultLookback = 30 * 24 * time.Hour

// maxListBytes caps JSON list responses.
const maxListBytes = 32 << 20

// apiKeyUser is the basic-auth username intervals.icu expects with an API key.
const apiKeyUser = "API_KEY"

// Client talks to the intervals.icu API.
//
// Every logical call goes through the circuit breaker, and inside it the
// retry policy; every attempt waits on the shared pacing limiter and runs
// under its own request timeout.
//
// Thread Safety: safe for concurrent use by every item of a batch.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	requestTimeout time.Duration
	maxPayload     int64
	policy         RetryPolicy
	limiter        *rate.Limiter
	breaker        *Breaker
	now            func() time.Time
}

// NewClient builds a client from provider settings.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		requestTimeout: cfg.RequestTimeout,
		maxPayload:     cfg.MaxPayloadBytes,
		policy:         RetryPolicyFromConfig(cfg),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:        NewBreaker("intervals-api", cfg.Breaker),
		now:            time.Now,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// FetchActivities lists a user's activities between start and end. A zero
// end means now; a zero start means 30 days before end. An activity that
// cannot be mapped fails the whole fetch with a PermanentError.
func (c *Client) FetchActivities(ctx context.Context, userID string, start, end time.Time) ([]models.Activity, error) {
	if end.IsZero() {
		end = c.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultLookback)
	}
	q := url.Values{}
	q.Set("oldest", start.Format(time.DateOnly))
	q.Set("newest", end.Format(time.DateOnly))

	body, err := c.call(ctx, OpFetchActivities, "/athlete/"+url.PathEscape(userID)+"/activities", q, maxListBytes)
	if err != nil {
		return nil, err
	}

	var raw []rawActivity
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &PermanentError{Op: OpFetchActivities, Err: fmt.Errorf("decode activities: %w", err)}
	}

	out := make([]models.Activity, 0, len(raw))
	for _, r := range raw {
		a, err := mapActivity(r, userID)
		if err != nil {
			return nil, &PermanentError{Op: OpFetchActivities, Err: fmt.Errorf("map activity: %w", err)}
		}
		out = append(out, a)
	}
	return out, nil
}

// FetchGear lists a user's active, non-component gear.
func (c *Client) FetchGear(ctx context.Context, userID string) ([]models.Gear, error) {
	body, err := c.call(ctx, OpFetchGear, "/athlete/"+url.PathEscape(userID)+"/gear", nil, maxListBytes)
	if err != nil {
		return nil, err
	}

	var raw []rawGear
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &PermanentError{Op: OpFetchGear, Err: fmt.Errorf("decode gear: %w", err)}
	}

	out := make([]models.Gear, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" || !keepGear(r) {
			continue
		}
		out = append(out, mapGear(r, userID))
	}
	return out, nil
}

// FetchPayload downloads an activity's raw FIT file.
func (c *Client) FetchPayload(ctx context.Context, activityID string) ([]byte, error) {
	return c.call(ctx, OpFetchPayload, "/activity/"+url.PathEscape(activityID)+"/fit-file", nil, c.maxPayload)
}

// call runs one logical GET through breaker, retry, and pacing.
func (c *Client) call(ctx context.Context, op, path string, query url.Values, limit int64) ([]byte, error) {
	return Execute(c.breaker, op, func() ([]byte, error) {
		return Do(ctx, c.policy, op, func(ctx context.Context) ([]byte, error) {
			return c.attempt(ctx, op, path, query, limit)
		})
	})
}

func (c *Client) attempt(ctx context.Context, op, path string, query url.Values, limit int64) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.SetBasicAuth(apiKeyUser, c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderCall(op, "transport_error", time.Since(start))
		return nil, ClassifyTransport(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordProviderCall(op, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		return nil, ClassifyStatus(op, resp, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		metrics.RecordProviderCall(op, "transport_error", time.Since(start))
		return nil, ClassifyTransport(ctx, op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > limit {
		metrics.RecordProviderCall(op, "too_large", time.Since(start))
		return nil, &PermanentError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", limit)}
	}
	metrics.RecordProviderCall(op, "success", time.Since(start))
	return body, nil
}
