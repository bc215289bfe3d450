// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tandem/internal/models"
)

// SchemaVersion is the record format written by this build. Readers accept
// any version up to and including it.
const SchemaVersion = 1

type actionRecord struct {
	SchemaVersion int `json:"schema_version"`
	models.UserAction
}

type similarityRecord struct {
	SchemaVersion int `json:"schema_version"`
	models.SimilarityDelta
}

// Serializer handles record encoding/decoding for NATS messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// MarshalAction encodes a user action.
func (s *Serializer) MarshalAction(action *models.UserAction) ([]byte, error) {
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("validate action: %w", err)
	}
	data, err := json.Marshal(actionRecord{SchemaVersion: SchemaVersion, UserAction: *action})
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	return data, nil
}

// UnmarshalAction decodes and validates a user action record.
// Failures are returned as *MalformedRecordError.
func (s *Serializer) UnmarshalAction(data []byte) (models.UserAction, error) {
	var rec actionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.UserAction{}, &MalformedRecordError{Kind: "action", Reason: "decode", Err: err}
	}
	if err := checkVersion(rec.SchemaVersion); err != nil {
		return models.UserAction{}, &MalformedRecordError{Kind: "action", Reason: "schema", Err: err}
	}
	if err := rec.UserAction.Validate(); err != nil {
		return models.UserAction{}, &MalformedRecordError{Kind: "action", Reason: "validate", Err: err}
	}
	return rec.UserAction, nil
}

// MarshalSimilarity encodes a similarity delta.
func (s *Serializer) MarshalSimilarity(delta *models.SimilarityDelta) ([]byte, error) {
	if err := delta.Validate(); err != nil {
		return nil, fmt.Errorf("validate similarity: %w", err)
	}
	data, err := json.Marshal(similarityRecord{SchemaVersion: SchemaVersion, SimilarityDelta: *delta})
	if err != nil {
		return nil, fmt.Errorf("marshal similarity: %w", err)
	}
	return data, nil
}

// UnmarshalSimilarity decodes and validates a similarity delta record.
// Failures are returned as *MalformedRecordError.
func (s *Serializer) UnmarshalSimilarity(data []byte) (models.SimilarityDelta, error) {
	var rec similarityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SimilarityDelta{}, &MalformedRecordError{Kind: "similarity", Reason: "decode", Err: err}
	}
	if err := checkVersion(rec.SchemaVersion); err != nil {
		return models.SimilarityDelta{}, &MalformedRecordError{Kind: "similarity", Reason: "schema", Err: err}
	}
	if err := rec.SimilarityDelta.Validate(); err != nil {
		return models.SimilarityDelta{}, &MalformedRecordError{Kind: "similarity", Reason: "validate", Err: err}
	}
	return rec.SimilarityDelta, nil
}

func checkVersion(v int) error {
	// Records written before versioning carry no field and decode as 0.
	if v < 0 || v > SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d", v)
	}
	return nil
}
