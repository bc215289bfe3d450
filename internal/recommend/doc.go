// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package recommend answers the three ranking queries over the similarity and
// action store.
//
// # Queries
//
//   - GetSimilarEvents: every stored pair touching an event, minus the
//     counterparts the user already interacted with, weakest first.
//   - GetRecommendationsForUser: weighted item-based collaborative filtering
//     over the user's most recent events.
//   - GetInteractionsCount: the summed action weight of each requested event.
//
// # Prediction
//
// For a candidate c and the user's recent events R, the predicted score is
//
//	Σ sim(c,n)·w(u,n) / Σ sim(c,n)    for n in neighbours(c) ∩ R
//
// where w(u,n) is the user's highest action weight on n. An empty or
// zero-similarity neighbourhood predicts 0.
//
// # Failure Handling
//
// Store calls run behind a circuit breaker. Every store or breaker failure is
// returned wrapped in ErrStoreUnavailable so transports can map it to a single
// "unavailable" status. A failure after the caller's context ends is returned
// as the context error and never counts toward opening the breaker. Empty
// inputs return empty results, never errors.
//
// # Thread Safety
//
// Service is safe for concurrent use; it holds no per-request state.
package recommend
