// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
)

// BatchResult reports what a handler did with a batch.
type BatchResult struct {
	Processed int
	Malformed int
}

// BatchHandler processes one poll batch. Returning an error makes the loop
// negatively acknowledge the whole batch; malformed records must be counted
// and skipped, not returned as errors.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []Record) (BatchResult, error)
}

// BatchHandlerFunc adapts a function to BatchHandler.
type BatchHandlerFunc func(ctx context.Context, batch []Record) (BatchResult, error)

// HandleBatch calls f.
func (f BatchHandlerFunc) HandleBatch(ctx context.Context, batch []Record) (BatchResult, error) {
	return f(ctx, batch)
}

// ConsumerStats holds runtime statistics for a consumer loop.
type ConsumerStats struct {
	Name             string    `json:"name"`
	Running          bool      `json:"running"`
	RecordsReceived  int64     `json:"records_received"`
	RecordsProcessed int64     `json:"records_processed"`
	RecordsMalformed int64     `json:"records_malformed"`
	BatchesCommitted int64     `json:"batches_committed"`
	BatchesFailed    int64     `json:"batches_failed"`
	FetchErrors      int64     `json:"fetch_errors"`
	AckErrors        int64     `json:"ack_errors"`
	LastPoll         time.Time `json:"last_poll,omitempty"`
	LastCommit       time.Time `json:"last_commit,omitempty"`
}

// ConsumerLoop is a single sequential consumer: poll, handle, commit.
// At most one batch is in flight, so records are handled in stream order.
type ConsumerLoop struct {
	source  RecordSource
	handler BatchHandler
	cfg     LoopConfig
	logger  zerolog.Logger

	running          atomic.Bool
	recordsReceived  atomic.Int64
	recordsProcessed atomic.Int64
	recordsMalformed atomic.Int64
	batchesCommitted atomic.Int64
	batchesFailed    atomic.Int64
	fetchErrors      atomic.Int64
	ackErrors        atomic.Int64
	lastPoll         atomic.Value // time.Time
	lastCommit       atomic.Value // time.Time
}

// NewConsumerLoop creates a loop. Zero BatchSize, PollWait or Backoff take
// the values of DefaultLoopConfig.
func NewConsumerLoop(source RecordSource, handler BatchHandler, cfg LoopConfig) (*ConsumerLoop, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: record source required", ErrInvalidConfig)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: batch handler required", ErrInvalidConfig)
	}
	def := DefaultLoopConfig(cfg.Name)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = def.PollWait
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = cfg.Backoff
	}
	return &ConsumerLoop{
		source:  source,
		handler: handler,
		cfg:     cfg,
		logger:  logging.WithComponent("consumer").With().Str("consumer", cfg.Name).Logger(),
	}, nil
}

// Name returns the loop's name.
func (l *ConsumerLoop) Name() string { return l.cfg.Name }

// Run consumes until ctx is cancelled. Cancellation is a normal shutdown:
// the in-flight batch is finished and committed, then Run returns nil.
// Fetch failures are logged and retried with backoff; Run never gives up on
// them.
func (l *ConsumerLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("consumer %s already running", l.cfg.Name)
	}
	defer l.running.Store(false)

	l.logger.Info().
		Int("batch_size", l.cfg.BatchSize).
		Dur("poll_wait", l.cfg.PollWait).
		Msg("Consumer started")

	backoff := l.cfg.Backoff
	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("Consumer stopped")
			return nil
		}

		records, err := l.source.Fetch(ctx, l.cfg.BatchSize, l.cfg.PollWait)
		l.lastPoll.Store(time.Now())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.fetchErrors.Add(1)
			metrics.StreamFetchErrors.WithLabelValues(l.cfg.Name).Inc()
			l.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Fetch failed, retrying")
			backoff = l.pause(ctx, backoff)
			continue
		}
		if len(records) == 0 {
			continue
		}

		if err := l.processBatch(ctx, records); err != nil {
			l.logger.Error().Err(err).Int("records", len(records)).Dur("backoff", backoff).Msg("Batch failed, requesting redelivery")
			backoff = l.pause(ctx, backoff)
			continue
		}
		backoff = l.cfg.Backoff
	}
}

// processBatch hands records to the handler and commits them. The handler
// and the commit run on a context that ignores cancellation so a batch
// already fetched is always finished.
func (l *ConsumerLoop) processBatch(ctx context.Context, records []Record) error {
	start := time.Now()
	workCtx := context.WithoutCancel(ctx)

	l.recordsReceived.Add(int64(len(records)))
	metrics.StreamRecordsConsumed.WithLabelValues(l.cfg.Name).Add(float64(len(records)))

	result, err := l.handler.HandleBatch(workCtx, records)
	if result.Malformed > 0 {
		l.recordsMalformed.Add(int64(result.Malformed))
		metrics.StreamRecordsMalformed.WithLabelValues(l.cfg.Name).Add(float64(result.Malformed))
	}
	if err != nil {
		l.batchesFailed.Add(1)
		for _, r := range records {
			if nakErr := r.Nak(); nakErr != nil {
				l.ackErrors.Add(1)
			}
		}
		metrics.RecordBatch(l.cfg.Name, len(records), time.Since(start), err)
		return err
	}

	var ackErr error
	for _, r := range records {
		if err := r.Ack(); err != nil {
			l.ackErrors.Add(1)
			ackErr = errors.Join(ackErr, err)
		}
	}
	if ackErr != nil {
		// Unacknowledged records are redelivered after the ack wait; handlers
		// are idempotent under redelivery.
		l.logger.Warn().Err(ackErr).Msg("Some records could not be acknowledged")
	}

	l.recordsProcessed.Add(int64(result.Processed))
	l.batchesCommitted.Add(1)
	l.lastCommit.Store(time.Now())
	metrics.RecordBatch(l.cfg.Name, len(records), time.Since(start), nil)

	l.logger.Debug().
		Int("records", len(records)).
		Int("processed", result.Processed).
		Int("malformed", result.Malformed).
		Dur("duration", time.Since(start)).
		Msg("Batch committed")
	return nil
}

// pause sleeps for d or until ctx ends, and returns the next backoff.
func (l *ConsumerLoop) pause(ctx context.Context, d time.Duration) time.Duration {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	next := d * 2
	if next > l.cfg.MaxBackoff {
		next = l.cfg.MaxBackoff
	}
	return next
}

// IsRunning reports whether Run is active.
func (l *ConsumerLoop) IsRunning() bool {
	return l.running.Load()
}

// Stats returns a snapshot of the loop's counters.
func (l *ConsumerLoop) Stats() ConsumerStats {
	stats := ConsumerStats{
		Name:             l.cfg.Name,
		Running:          l.running.Load(),
		RecordsReceived:  l.recordsReceived.Load(),
		RecordsProcessed: l.recordsProcessed.Load(),
		RecordsMalformed: l.recordsMalformed.Load(),
		BatchesCommitted: l.batchesCommitted.Load(),
		BatchesFailed:    l.batchesFailed.Load(),
		FetchErrors:      l.fetchErrors.Load(),
		AckErrors:        l.ackErrors.Load(),
	}
	if t, ok := l.lastPoll.Load().(time.Time); ok {
		stats.LastPoll = t
	}
	if t, ok := l.lastCommit.Load().(time.Time); ok {
		stats.LastCommit = t
	}
	return stats
}
