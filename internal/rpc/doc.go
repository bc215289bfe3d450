// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

/*
Package rpc serves Tandem's gRPC surface and provides a client for it.

# Services

UserActionController (collector role):

  - CollectUserAction: unary ingest of one user action

RecommendationsController (analyzer role), all server-streaming:

  - GetSimilarEvents
  - GetRecommendationsForUser
  - GetInteractionsCount

# Wire Format

Messages are plain Go structs encoded as JSON by a codec registered under the
"json" content subtype. Service descriptors are written by hand, so there is no
generated code and no .proto file. Clients select the codec with
grpc.CallContentSubtype(CodecName); Dial does this for you.

# Status Codes

  - InvalidArgument: request validation failed
  - Unavailable: the store, breaker or stream is unavailable
  - ResourceExhausted: the caller exceeded its per-peer rate limit
  - Canceled / DeadlineExceeded: propagated from the caller's context
  - Internal: anything else, including recovered panics

A stream whose caller goes away stops sending and ends without an error.
*/
package rpc
