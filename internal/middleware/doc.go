// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package middleware provides the HTTP middleware shared by Tandem's chi router.
//
//   - RequestID: accepts or generates X-Request-ID and puts it in the logging context
//   - PrometheusMetrics: request counts and durations labelled by route pattern
//   - RequestLogger: one structured log line per request, warning when slow
//
// All three have the func(http.Handler) http.Handler shape taken by chi's r.Use.
package middleware
