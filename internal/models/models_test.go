// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package models

import (
	"errors"
	"testing"
	"time"
)

func TestActionWeight(t *testing.T) {
	tests := []struct {
		actionType ActionType
		want       float64
		known      bool
	}{
		{ActionView, 0.2, true},
		{ActionRegister, 0.8, true},
		{ActionLike, 1.0, true},
		{ActionType("SHARE"), 0.0, false},
		{ActionType(""), 0.0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.actionType), func(t *testing.T) {
			if got := ActionWeight(tt.actionType); got != tt.want {
				t.Errorf("ActionWeight(%q) = %v, want %v", tt.actionType, got, tt.want)
			}
			if got := tt.actionType.Known(); got != tt.known {
				t.Errorf("Known() = %v, want %v", got, tt.known)
			}
		})
	}
}

func TestParseActionType(t *testing.T) {
	tests := []struct {
		input   string
		want    ActionType
		wantErr bool
	}{
		{"VIEW", ActionView, false},
		{"like", ActionLike, false},
		{"ACTION_REGISTER", ActionRegister, false},
		{" action_view ", ActionView, false},
		{"bookmark", ActionType("BOOKMARK"), true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseActionType(tt.input)
			if got != tt.want {
				t.Errorf("ParseActionType(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if tt.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownActionType) {
				t.Errorf("error should wrap ErrUnknownActionType: %v", err)
			}
		})
	}
}

func TestUserAction_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		action  UserAction
		wantErr bool
	}{
		{"valid", UserAction{UserID: 1, EventID: 10, ActionType: ActionView, Timestamp: now}, false},
		{"unknown type is still valid", UserAction{UserID: 1, EventID: 10, ActionType: "SHARE", Timestamp: now}, false},
		{"zero user", UserAction{EventID: 10, ActionType: ActionView, Timestamp: now}, true},
		{"negative event", UserAction{UserID: 1, EventID: -1, ActionType: ActionView, Timestamp: now}, true},
		{"missing type", UserAction{UserID: 1, EventID: 10, Timestamp: now}, true},
		{"missing timestamp", UserAction{UserID: 1, EventID: 10, ActionType: ActionLike}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr != (err != nil) {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	if lo, hi := Canonical(20, 10); lo != 10 || hi != 20 {
		t.Errorf("Canonical(20, 10) = (%d, %d)", lo, hi)
	}
	if lo, hi := Canonical(3, 7); lo != 3 || hi != 7 {
		t.Errorf("Canonical(3, 7) = (%d, %d)", lo, hi)
	}
}

func TestSimilarityDelta(t *testing.T) {
	d := SimilarityDelta{EventA: 10, EventB: 20, Score: 0.5}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if d.Other(10) != 20 || d.Other(20) != 10 || d.Other(30) != 0 {
		t.Errorf("Other() returned unexpected counterparts")
	}

	reversed := SimilarityDelta{EventA: 20, EventB: 10}
	if reversed.Validate() == nil {
		t.Error("non-canonical pair should fail validation")
	}
	self := SimilarityDelta{EventA: 10, EventB: 10}
	if self.Validate() == nil {
		t.Error("self pair should fail validation")
	}
}
