// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Uptime     float64           `json:"uptime_seconds"`
}

// Health probes every registered dependency concurrently.
//
// @Summary Health check
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse{data=HealthStatus}
// @Failure 503 {object} APIResponse{error=APIError} "A dependency is unhealthy"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	components := make(map[string]string, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()
			err := c.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				components[c.Name] = "error: " + err.Error()
				return
			}
			components[c.Name] = "ok"
		}(c)
	}
	wg.Wait()

	status := HealthStatus{
		Status:     "healthy",
		Components: components,
		Uptime:     time.Since(h.startTime).Seconds(),
	}
	if !healthy {
		status.Status = "unhealthy"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "one or more components are unhealthy", status)
		return
	}
	rw.Success(status)
}
