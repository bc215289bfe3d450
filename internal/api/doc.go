// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

/*
Package api serves Tandem's HTTP surface with the chi router.

# Endpoints

Health (always mounted):

	GET  /api/v1/health/live     process is up
	GET  /api/v1/health/ready    store and broker reachable for the enabled roles
	GET  /api/v1/health/stats    consumer, aggregator, WAL and query counters

Ingest (collector role):

	POST /api/v1/actions         {"user_id":1,"event_id":2,"action_type":"LIKE"}

Queries (analyzer role):

	GET  /api/v1/events/{eventID}/similar?user_id=&max_results=
	GET  /api/v1/users/{userID}/recommendations?max_results=
	POST /api/v1/events/interactions   {"event_ids":[1,2,3]}

Metrics:

	GET  /metrics

Routes of a disabled role are not mounted and answer 404.

# Responses

Every JSON endpoint returns a models.APIResponse envelope. Errors carry a
code: VALIDATION_ERROR (400), STORE_UNAVAILABLE or STREAM_UNAVAILABLE (503),
INTERNAL_ERROR (500).
*/
package api
