// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"time"

	"github.com/tomtom215/tandem/internal/models"
)

// DefaultMaxResults applies when max_results is omitted.
const DefaultMaxResults = 10

// ActionRequest is the body of POST /api/v1/actions.
type ActionRequest struct {
	UserID     int64      `json:"user_id" validate:"required,gt=0"`
	EventID    int64      `json:"event_id" validate:"required,gt=0"`
	ActionType string     `json:"action_type" validate:"required"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

func (req *ActionRequest) toModel() *models.UserAction {
	a := &models.UserAction{
		UserID:     req.UserID,
		EventID:    req.EventID,
		ActionType: models.ActionType(req.ActionType),
	}
	if req.Timestamp != nil {
		a.Timestamp = req.Timestamp.UTC()
	}
	return a
}

// SimilarEventsRequest holds the parameters of the similar events query.
type SimilarEventsRequest struct {
	EventID    int64 `json:"event_id" validate:"gt=0"`
	UserID     int64 `json:"user_id" validate:"gt=0"`
	MaxResults int   `json:"max_results" validate:"gte=0,lte=1000"`
}

// RecommendationsRequest holds the parameters of the user recommendations query.
type RecommendationsRequest struct {
	UserID     int64 `json:"user_id" validate:"gt=0"`
	MaxResults int   `json:"max_results" validate:"gte=0,lte=1000"`
}

// InteractionsRequest is the body of POST /api/v1/events/interactions.
type InteractionsRequest struct {
	EventIDs []int64 `json:"event_ids" validate:"max=1000,dive,gt=0"`
}
