// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

// DeltaPublisher appends similarity deltas to the similarity stream.
type DeltaPublisher interface {
	PublishSimilarities(ctx context.Context, deltas []models.SimilarityDelta) error
}

// Processor is the aggregator's batch handler. It decodes action records,
// folds them into its State in stream order and publishes the resulting
// deltas before the batch is committed.
type Processor struct {
	state      *State
	publisher  DeltaPublisher
	serializer *eventprocessor.Serializer
	logger     zerolog.Logger

	snapshot atomic.Pointer[Snapshot]
	emitted  atomic.Int64
}

// NewProcessor creates a processor over a fresh State.
func NewProcessor(publisher DeltaPublisher, opts Options) (*Processor, error) {
	if publisher == nil {
		return nil, eventprocessor.ErrNilPublisher
	}
	p := &Processor{
		state:      NewState(opts),
		publisher:  publisher,
		serializer: eventprocessor.NewSerializer(),
		logger:     logging.WithComponent("aggregator"),
	}
	snap := p.state.Snapshot()
	p.snapshot.Store(&snap)
	return p, nil
}

// HandleBatch implements eventprocessor.BatchHandler.
func (p *Processor) HandleBatch(ctx context.Context, batch []eventprocessor.Record) (eventprocessor.BatchResult, error) {
	var result eventprocessor.BatchResult
	var deltas []models.SimilarityDelta

	for _, rec := range batch {
		action, err := p.serializer.UnmarshalAction(rec.Data())
		if err != nil {
			result.Malformed++
			p.logger.Warn().Err(err).Msg("Skipping malformed action record")
			continue
		}
		if !action.ActionType.Known() {
			metrics.UnknownActionTypes.Inc()
			p.logger.Warn().
				Str("action_type", action.ActionType.String()).
				Int64("user_id", action.UserID).
				Int64("event_id", action.EventID).
				Msg("Unknown action type, applying weight 0")
		}
		deltas = append(deltas, p.state.Apply(&action)...)
		result.Processed++
	}

	p.publishSnapshot()

	if len(deltas) == 0 {
		return result, nil
	}
	if err := p.publisher.PublishSimilarities(ctx, deltas); err != nil {
		return result, fmt.Errorf("publish %d similarity deltas: %w", len(deltas), err)
	}
	p.emitted.Add(int64(len(deltas)))
	metrics.SimilarityDeltasEmitted.Add(float64(len(deltas)))
	return result, nil
}

func (p *Processor) publishSnapshot() {
	snap := p.state.Snapshot()
	p.snapshot.Store(&snap)
	metrics.AggregatorEvents.Set(float64(snap.Events))
	metrics.AggregatorPairs.Set(float64(snap.Pairs))
}

// Snapshot returns the state size as of the last handled batch. Safe to call
// from any goroutine.
func (p *Processor) Snapshot() Snapshot {
	return *p.snapshot.Load()
}

// DeltasEmitted returns the number of deltas published so far.
func (p *Processor) DeltasEmitted() int64 {
	return p.emitted.Load()
}

var _ eventprocessor.BatchHandler = (*Processor)(nil)
