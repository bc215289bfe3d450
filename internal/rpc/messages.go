// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package rpc

import (
	"time"

	"github.com/tomtom215/tandem/internal/models"
)

// MaxResultsLimit caps max_results on every query.
const MaxResultsLimit = 1000

// UserActionMessage is the CollectUserAction request. ActionType accepts
// ACTION_VIEW, ACTION_REGISTER and ACTION_LIKE as well as the bare names.
// A missing timestamp is set to the receive time.
type UserActionMessage struct {
	UserID     int64      `json:"user_id"`
	EventID    int64      `json:"event_id"`
	ActionType string     `json:"action_type"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// Empty is the CollectUserAction response.
type Empty struct{}

// SimilarEventsRequest asks for events similar to EventID that UserID has not
// interacted with.
type SimilarEventsRequest struct {
	EventID    int64 `json:"event_id" validate:"gt=0"`
	UserID     int64 `json:"user_id" validate:"gt=0"`
	MaxResults int32 `json:"max_results" validate:"gte=0,lte=1000"`
}

// UserPredictionsRequest asks for predicted recommendations for UserID.
type UserPredictionsRequest struct {
	UserID     int64 `json:"user_id" validate:"gt=0"`
	MaxResults int32 `json:"max_results" validate:"gte=0,lte=1000"`
}

// InteractionsCountRequest asks for the weighted interaction total of each event.
type InteractionsCountRequest struct {
	EventIDs []int64 `json:"event_id" validate:"max=1000,dive,gt=0"`
}

// RecommendedEventMessage is one streamed result item.
type RecommendedEventMessage = models.RecommendedEvent

func (m *UserActionMessage) toModel() *models.UserAction {
	a := &models.UserAction{
		UserID:     m.UserID,
		EventID:    m.EventID,
		ActionType: models.ActionType(m.ActionType),
	}
	if m.Timestamp != nil {
		a.Timestamp = m.Timestamp.UTC()
	}
	return a
}

// wireActionType renders t in the ACTION_ form RPC clients send.
func wireActionType(t models.ActionType) string {
	if t == "" {
		return ""
	}
	return "ACTION_" + t.String()
}
