// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// SimilarEvents returns the stored pairs touching the event, minus events the
// user already interacted with, weakest first.
func (h *Handler) SimilarEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	eventID, apiErr := parseInt64("event_id", chi.URLParam(r, "eventID"))
	if apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	userID, apiErr := parseInt64("user_id", r.URL.Query().Get("user_id"))
	if apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	maxResults, apiErr := getIntParam(r, "max_results", DefaultMaxResults)
	if apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	req := SimilarEventsRequest{EventID: eventID, UserID: userID, MaxResults: maxResults}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	events, err := h.deps.Recommender.GetSimilarEvents(r.Context(), req.EventID, req.UserID, req.MaxResults)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, events, len(events), start)
}

// UserRecommendations returns predicted scores for events similar to the
// user's most recent events.
func (h *Handler) UserRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, apiErr := parseInt64("user_id", chi.URLParam(r, "userID"))
	if apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	maxResults, apiErr := getIntParam(r, "max_results", DefaultMaxResults)
	if apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	req := RecommendationsRequest{UserID: userID, MaxResults: maxResults}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	events, err := h.deps.Recommender.GetRecommendationsForUser(r.Context(), req.UserID, req.MaxResults)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, events, len(events), start)
}

// InteractionsCount returns the weighted interaction total of each requested
// event, in request order.
func (h *Handler) InteractionsCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req InteractionsRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	events, err := h.deps.Recommender.GetInteractionsCount(r.Context(), req.EventIDs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, events, len(events), start)
}
