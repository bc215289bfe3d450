// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package models

import (
	"time"
)

// APIResponse is the envelope returned by every HTTP endpoint.
//
//	{
//	  "status": "success",
//	  "data": [{"event_id": 20, "score": 0.2236}],
//	  "metadata": {"timestamp": "2026-01-02T15:04:05Z", "query_time_ms": 3, "count": 1}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries timing and size information for a response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Count       int       `json:"count,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError is a machine readable code plus a human readable message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is returned by the readiness endpoint.
type HealthStatus struct {
	Status            string            `json:"status"`
	Roles             []string          `json:"roles"`
	DatabaseConnected bool              `json:"database_connected"`
	NATSConnected     bool              `json:"nats_connected"`
	Components        map[string]string `json:"components,omitempty"`
	Uptime            float64           `json:"uptime_seconds"`
}
