// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package wal

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
)

// Publisher republishes a pending entry.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry *Entry) error

// PublishEntry implements Publisher.
func (f PublisherFunc) PublishEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

const (
	maxRetryBackoff = 5 * time.Minute
	publishTimeout  = 10 * time.Second
)

// RetryResult summarises one retry pass. Held counts the entries left
// untouched behind the entry that stopped the pass.
type RetryResult struct {
	Pending    int `json:"pending"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
	Expired    int `json:"expired"`
	MaxRetried int `json:"max_retried"`
	Skipped    int `json:"skipped"`
	Held       int `json:"held"`
}

// RetryLoop republishes pending entries until they are confirmed, expire or
// exceed MaxRetries. The first pass runs immediately so entries left by a
// previous process are recovered at startup.
type RetryLoop struct {
	wal       *BadgerWAL
	publisher Publisher
	config    Config

	running atomic.Bool
	passes  atomic.Int64
}

// NewRetryLoop creates a retry loop for w.
func NewRetryLoop(w *BadgerWAL, publisher Publisher) *RetryLoop {
	return &RetryLoop{wal: w, publisher: publisher, config: w.Config()}
}

// Run blocks until ctx is canceled.
func (r *RetryLoop) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("WAL retry loop already running")
	}
	defer r.running.Store(false)

	logging.Info().
		Dur("interval", r.config.RetryInterval).
		Int("max_retries", r.config.MaxRetries).
		Msg("WAL retry loop started")

	r.logResult(r.RetryPending(ctx))

	retry := time.NewTicker(r.config.RetryInterval)
	defer retry.Stop()

	compactEvery := r.config.CompactInterval
	if compactEvery <= 0 {
		compactEvery = time.Hour
	}
	compact := time.NewTicker(compactEvery)
	defer compact.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("WAL retry loop stopped")
			return nil
		case <-retry.C:
			r.logResult(r.RetryPending(ctx))
		case <-compact.C:
			if _, err := r.wal.Compact(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("WAL compaction failed")
			}
		}
	}
}

// IsRunning reports whether Run is active.
func (r *RetryLoop) IsRunning() bool {
	return r.running.Load()
}

// Passes returns the number of completed retry passes.
func (r *RetryLoop) Passes() int64 {
	return r.passes.Load()
}

func (r *RetryLoop) logResult(res RetryResult) {
	if res.Published == 0 && res.Failed == 0 && res.Expired == 0 && res.MaxRetried == 0 {
		return
	}
	logging.Info().
		Int("published", res.Published).
		Int("failed", res.Failed).
		Int("expired", res.Expired).
		Int("max_retried", res.MaxRetried).
		Int("held", res.Held).
		Msg("WAL retry pass complete")
}

// RetryPending runs one pass over the pending entries, oldest first. The pass
// stops at the first entry it cannot publish (failed, backing off or claimed
// by another publisher) so entries reach the stream in write order.
func (r *RetryLoop) RetryPending(ctx context.Context) RetryResult {
	defer r.passes.Add(1)

	var res RetryResult
	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("WAL retry: failed to get pending entries")
		}
		return res
	}
	res.Pending = len(entries)

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !r.process(ctx, entry, &res) {
			res.Held = len(entries) - i - 1
			break
		}
	}
	return res
}

// process handles one entry and reports whether the pass may move on to the
// next one.
func (r *RetryLoop) process(ctx context.Context, entry *Entry, res *RetryResult) bool {
	if !r.wal.TryClaimEntry(entry.ID) {
		res.Skipped++
		return false
	}
	defer r.wal.ReleaseEntry(entry.ID)

	switch {
	case time.Since(entry.CreatedAt) > r.config.EntryTTL:
		logging.Warn().Str("entry_id", entry.ID).Msg("WAL retry: entry expired, dropping")
		r.drop(ctx, entry, "expired")
		res.Expired++
		return true
	case entry.Attempts >= r.config.MaxRetries:
		logging.Error().
			Str("entry_id", entry.ID).
			Int("attempts", entry.Attempts).
			Str("last_error", entry.LastError).
			Msg("WAL retry: entry exceeded max retries, dropping")
		r.drop(ctx, entry, "max_retries")
		res.MaxRetried++
		return true
	case !r.readyForRetry(entry):
		res.Skipped++
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := r.publisher.PublishEntry(pubCtx, entry)
	cancel()

	if err != nil {
		logging.Warn().Err(err).Str("entry_id", entry.ID).Int("attempt", entry.Attempts+1).Msg("WAL retry: publish failed")
		if uerr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); uerr != nil {
			logging.Error().Err(uerr).Str("entry_id", entry.ID).Msg("WAL retry: failed to record attempt")
		}
		res.Failed++
		return false
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		// Published already; the broker deduplicates a republish by entry id.
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to confirm entry")
		res.Failed++
		return true
	}
	res.Published++
	return true
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry, reason string) {
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to drop entry")
		return
	}
	metrics.WALOperations.WithLabelValues("drop_" + reason).Inc()
}

func (r *RetryLoop) readyForRetry(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return time.Since(entry.LastAttemptAt) >= backoff(r.config.RetryBackoff, entry.Attempts)
}

// backoff returns base·2^attempts capped at five minutes.
func backoff(base time.Duration, attempts int) time.Duration {
	if attempts > 50 {
		return maxRetryBackoff
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempts)))
	if d <= 0 || d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}
