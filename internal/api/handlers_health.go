// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/tandem/internal/models"
)

// readyTimeout bounds the store ping of a readiness probe.
const readyTimeout = 2 * time.Second

// HealthLive answers 200 while the process runs.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, 0, time.Now())
}

// HealthReady answers 200 when every configured dependency is reachable and
// 503 otherwise. The body lists each component either way.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	health := h.checkHealth(r.Context())

	if health.Status != "healthy" {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Data:   health,
			Metadata: models.Metadata{
				Timestamp:   time.Now().UTC(),
				QueryTimeMS: time.Since(start).Milliseconds(),
			},
			Error: &models.APIError{Code: CodeNotReady, Message: "Service is not ready"},
		})
		return
	}
	respondData(w, r, http.StatusOK, health, 0, start)
}

func (h *Handler) checkHealth(ctx context.Context) models.HealthStatus {
	health := models.HealthStatus{
		Status:     "healthy",
		Roles:      h.deps.Roles,
		Components: map[string]string{},
		Uptime:     time.Since(h.startTime).Seconds(),
	}

	if h.deps.Store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		err := h.deps.Store.Ping(pingCtx)
		cancel()
		health.DatabaseConnected = err == nil
		health.Components["database"] = componentState(err == nil)
		if err != nil {
			health.Status = "degraded"
		}
	}

	if h.deps.NATS != nil {
		health.NATSConnected = h.deps.NATS.IsConnected()
		health.Components["nats"] = componentState(health.NATSConnected)
		if !health.NATSConnected {
			health.Status = "degraded"
		}
	}
	return health
}

func componentState(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

// HealthStats reports the registered stats snapshots.
func (h *Handler) HealthStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	out := make(map[string]interface{}, len(h.deps.Stats)+1)
	for name, stats := range h.deps.Stats {
		out[name] = stats()
	}
	out["uptime_seconds"] = time.Since(h.startTime).Seconds()

	respondData(w, r, http.StatusOK, out, len(h.deps.Stats), start)
}
