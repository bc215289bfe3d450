// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package analyzer persists the two streams into the similarity and action
// store. Each sink is a batch handler for an eventprocessor.ConsumerLoop and
// writes one poll batch in one store call, so a failed write nak's the whole
// batch and the broker redelivers it.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/models"
)

// ErrNilStore is returned when a sink is built without a store.
var ErrNilStore = errors.New("analyzer: store is nil")

// ActionStore appends user actions.
type ActionStore interface {
	PersistActions(ctx context.Context, actions []models.UserAction) error
}

// SimilarityStore upserts similarity deltas.
type SimilarityStore interface {
	PersistSimilarities(ctx context.Context, deltas []models.SimilarityDelta) error
}

// ActionSink writes action records to an ActionStore.
type ActionSink struct {
	store      ActionStore
	serializer *eventprocessor.Serializer
	logger     zerolog.Logger
}

// NewActionSink creates an ActionSink.
func NewActionSink(store ActionStore) (*ActionSink, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &ActionSink{
		store:      store,
		serializer: eventprocessor.NewSerializer(),
		logger:     logging.WithComponent("analyzer.actions"),
	}, nil
}

// HandleBatch implements eventprocessor.BatchHandler.
func (s *ActionSink) HandleBatch(ctx context.Context, batch []eventprocessor.Record) (eventprocessor.BatchResult, error) {
	var result eventprocessor.BatchResult
	actions := make([]models.UserAction, 0, len(batch))

	for _, rec := range batch {
		action, err := s.serializer.UnmarshalAction(rec.Data())
		if err != nil {
			result.Malformed++
			s.logger.Warn().Err(err).Msg("Skipping malformed action record")
			continue
		}
		actions = append(actions, action)
	}

	if err := s.store.PersistActions(ctx, actions); err != nil {
		return result, fmt.Errorf("persist %d actions: %w", len(actions), err)
	}
	result.Processed = len(actions)
	return result, nil
}

// SimilaritySink writes similarity records to a SimilarityStore.
type SimilaritySink struct {
	store      SimilarityStore
	serializer *eventprocessor.Serializer
	logger     zerolog.Logger
}

// NewSimilaritySink creates a SimilaritySink.
func NewSimilaritySink(store SimilarityStore) (*SimilaritySink, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &SimilaritySink{
		store:      store,
		serializer: eventprocessor.NewSerializer(),
		logger:     logging.WithComponent("analyzer.similarities"),
	}, nil
}

// HandleBatch implements eventprocessor.BatchHandler. Deltas are passed in
// stream order; the store keeps the last one per pair.
func (s *SimilaritySink) HandleBatch(ctx context.Context, batch []eventprocessor.Record) (eventprocessor.BatchResult, error) {
	var result eventprocessor.BatchResult
	deltas := make([]models.SimilarityDelta, 0, len(batch))

	for _, rec := range batch {
		delta, err := s.serializer.UnmarshalSimilarity(rec.Data())
		if err != nil {
			result.Malformed++
			s.logger.Warn().Err(err).Msg("Skipping malformed similarity record")
			continue
		}
		deltas = append(deltas, delta)
	}

	if err := s.store.PersistSimilarities(ctx, deltas); err != nil {
		return result, fmt.Errorf("persist %d similarities: %w", len(deltas), err)
	}
	result.Processed = len(deltas)
	return result, nil
}

var (
	_ eventprocessor.BatchHandler = (*ActionSink)(nil)
	_ eventprocessor.BatchHandler = (*SimilaritySink)(nil)
)
