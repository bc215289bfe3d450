// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package models holds the records that cross component boundaries: user actions
// on the action stream, similarity deltas on the similarity stream, and the
// recommended events returned by the query surface.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType is the kind of interaction a user had with an event.
type ActionType string

const (
	ActionView     ActionType = "VIEW"
	ActionRegister ActionType = "REGISTER"
	ActionLike     ActionType = "LIKE"
)

// actionWeights is the closed interaction-type to weight table.
var actionWeights = map[ActionType]float64{
	ActionView:     0.2,
	ActionRegister: 0.8,
	ActionLike:     1.0,
}

// Weight returns the action weight. Types outside the table weigh 0.
func (t ActionType) Weight() float64 {
	return actionWeights[t]
}

// Known reports whether t is one of VIEW, REGISTER or LIKE.
func (t ActionType) Known() bool {
	_, ok := actionWeights[t]
	return ok
}

func (t ActionType) String() string {
	return string(t)
}

// ActionWeight returns the weight of an action type.
func ActionWeight(t ActionType) float64 {
	return t.Weight()
}

// ParseActionType accepts VIEW/REGISTER/LIKE in any case, with or without the
// ACTION_ prefix used by RPC clients. Unrecognised input is returned upper-cased
// together with ErrUnknownActionType so callers can decide whether to warn or reject.
func ParseActionType(s string) (ActionType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.TrimPrefix(normalized, "ACTION_")
	t := ActionType(normalized)
	if !t.Known() {
		return t, fmt.Errorf("%w: %q", ErrUnknownActionType, s)
	}
	return t, nil
}

// ErrUnknownActionType marks an action type outside the weight table.
var ErrUnknownActionType = errors.New("unknown action type")

// UserAction is one immutable interaction fact.
type UserAction struct {
	UserID     int64      `json:"user_id" validate:"required,gt=0"`
	EventID    int64      `json:"event_id" validate:"required,gt=0"`
	ActionType ActionType `json:"action_type" validate:"required"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Validate checks the fields every consumer relies on. An unknown action type
// is not a validation failure; it weighs 0.
func (a *UserAction) Validate() error {
	if a.UserID <= 0 {
		return fmt.Errorf("user_id must be positive, got %d", a.UserID)
	}
	if a.EventID <= 0 {
		return fmt.Errorf("event_id must be positive, got %d", a.EventID)
	}
	if a.ActionType == "" {
		return errors.New("action_type is required")
	}
	if a.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// Weight is shorthand for a.ActionType.Weight().
func (a *UserAction) Weight() float64 {
	return a.ActionType.Weight()
}
