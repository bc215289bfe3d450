// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package validation

import (
	"strings"
	"testing"
)

type collectRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	EventID    int64  `json:"event_id" validate:"required,gt=0"`
	ActionType string `json:"action_type" validate:"required,action_type"`
}

type countRequest struct {
	EventIDs []int64 `json:"event_ids" validate:"min=1,max=3,dive,gt=0"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      interface{}
		wantFields []string
	}{
		{"valid", &collectRequest{UserID: 1, EventID: 2, ActionType: "VIEW"}, nil},
		{"lowercase prefixed type", &collectRequest{UserID: 1, EventID: 2, ActionType: "action_like"}, nil},
		{"unknown type", &collectRequest{UserID: 1, EventID: 2, ActionType: "SHARE"}, []string{"action_type"}},
		{"missing ids", &collectRequest{ActionType: "LIKE"}, []string{"user_id", "event_id"}},
		{"negative id", &collectRequest{UserID: -1, EventID: 2, ActionType: "LIKE"}, []string{"user_id"}},
		{"empty list", &countRequest{}, []string{"event_ids"}},
		{"too many", &countRequest{EventIDs: []int64{1, 2, 3, 4}}, []string{"event_ids"}},
		{"bad element", &countRequest{EventIDs: []int64{1, 0}}, []string{"event_ids[1]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if len(tt.wantFields) == 0 {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("got %d field errors %+v, want %v", len(verr.Fields), verr.Fields, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if verr.Fields[i].Field != f {
					t.Errorf("Fields[%d].Field = %q, want %q", i, verr.Fields[i].Field, f)
				}
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	single := ValidateStruct(&collectRequest{UserID: 1, EventID: 2, ActionType: "SHARE"}).ToAPIError()
	if single.Code != CodeValidation {
		t.Errorf("Code = %q", single.Code)
	}
	if single.Message != "action_type must be one of VIEW, REGISTER, LIKE" {
		t.Errorf("Message = %q", single.Message)
	}
	if single.Details["field"] != "action_type" {
		t.Errorf("Details = %v", single.Details)
	}

	multi := ValidateStruct(&collectRequest{}).ToAPIError()
	if !strings.Contains(multi.Message, "user_id is required") || !strings.Contains(multi.Message, "event_id is required") {
		t.Errorf("Message = %q", multi.Message)
	}
	if _, ok := multi.Details["fields"]; !ok {
		t.Errorf("Details = %v, want fields list", multi.Details)
	}

	empty := (&RequestValidationError{}).ToAPIError()
	if empty.Message != "Validation failed" {
		t.Errorf("empty Message = %q", empty.Message)
	}
}

func TestTranslateError_Params(t *testing.T) {
	verr := ValidateStruct(&countRequest{EventIDs: []int64{1, 2, 3, 4}})
	if verr == nil {
		t.Fatal("expected error")
	}
	if got := verr.Fields[0].Message; got != "event_ids must be at most 3 items" {
		t.Errorf("Message = %q", got)
	}
}
