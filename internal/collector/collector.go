// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package collector is the ingest side of Tandem. It validates user actions
// and appends them to the action stream.
//
// With the WAL enabled every accepted action is written to BadgerDB before it
// is published:
//  1. Write to the WAL (durable)
//  2. Publish with the WAL entry id as the broker deduplication key
//  3. On success, confirm the entry
//  4. On failure, leave the entry for the retry loop and report success
//
// Once a publish has failed the collector is backlogged: later actions are
// only written to the WAL, and the retry loop sends everything in write order.
// Direct publishing resumes when the WAL has no pending entries left. The
// action stream therefore stays in collection order across broker outages.
//
// A redelivered entry carries the same message id, so the broker drops the
// duplicate when both the first publish and a retry reach it.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
	"github.com/tomtom215/tandem/internal/validation"
	"github.com/tomtom215/tandem/internal/wal"
)

var (
	// ErrInvalidAction wraps every ingest validation failure.
	ErrInvalidAction = errors.New("invalid user action")

	// ErrNilPublisher is returned by New when no publisher is given.
	ErrNilPublisher = errors.New("collector: publisher is nil")

	// ErrBufferUnavailable is returned when a backlogged collector cannot
	// write the action to the WAL.
	ErrBufferUnavailable = errors.New("action buffer unavailable")
)

// Transport labels for metrics and logs.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// ActionPublisher appends one action to the action stream.
// It is implemented by *eventprocessor.Publisher.
type ActionPublisher interface {
	PublishAction(ctx context.Context, action *models.UserAction, msgID string) error
}

// Options configures a Collector.
type Options struct {
	// WAL buffers actions until they are published. Nil disables buffering.
	WAL *wal.BadgerWAL

	// RejectUnknownActions fails actions whose type is not VIEW, REGISTER or LIKE.
	RejectUnknownActions bool

	// Now overrides the clock used for missing timestamps.
	Now func() time.Time
}

// Stats are ingest counters.
type Stats struct {
	Collected       int64 `json:"collected"`
	Rejected        int64 `json:"rejected"`
	DeferredPublish int64 `json:"deferred_publish"`
	WALEnabled      bool  `json:"wal_enabled"`
	Backlogged      bool  `json:"backlogged"`
}

// Collector accepts user actions. It is safe for concurrent use.
type Collector struct {
	publisher     ActionPublisher
	wal           *wal.BadgerWAL
	rejectUnknown bool
	now           func() time.Time
	logger        zerolog.Logger

	collected atomic.Int64
	rejected  atomic.Int64
	deferred  atomic.Int64

	// backlog is set while the WAL holds entries that must reach the stream
	// before any new action. backlogMu orders the WAL writes of a backlogged
	// delivery against clearing the flag.
	backlog   atomic.Bool
	backlogMu sync.Mutex
}

// New creates a Collector.
func New(publisher ActionPublisher, opts Options) (*Collector, error) {
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Collector{
		publisher:     publisher,
		wal:           opts.WAL,
		rejectUnknown: opts.RejectUnknownActions,
		now:           now,
		logger:        logging.WithComponent("collector"),
	}
	// Entries left by a previous process go out before anything new.
	if c.wal != nil && c.wal.Stats().PendingCount > 0 {
		c.backlog.Store(true)
	}
	return c, nil
}

type transportKey struct{}

// WithTransport tags ctx with the ingest transport for metrics.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

func transportFrom(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey{}).(string); ok && t != "" {
		return t
	}
	return "internal"
}

// Collect validates action and appends it to the action stream. The action
// type is normalized in place and a zero timestamp is set to the receive time.
//
// Validation failures wrap ErrInvalidAction; a *validation.RequestValidationError
// is reachable with errors.As when the struct constraints failed.
func (c *Collector) Collect(ctx context.Context, action *models.UserAction) error {
	transport := transportFrom(ctx)
	if err := c.prepare(action); err != nil {
		c.rejected.Add(1)
		metrics.ActionsRejected.WithLabelValues(transport).Inc()
		return err
	}

	logger := c.logger.With().
		Int64("user_id", action.UserID).
		Int64("event_id", action.EventID).
		Str("action_type", action.ActionType.String()).
		Logger()

	if err := c.deliver(ctx, &logger, action); err != nil {
		return err
	}

	c.collected.Add(1)
	metrics.ActionsCollected.WithLabelValues(action.ActionType.String(), transport).Inc()
	return nil
}

func (c *Collector) prepare(action *models.UserAction) error {
	if action == nil {
		return fmt.Errorf("%w: action is nil", ErrInvalidAction)
	}

	if action.ActionType != "" {
		t, err := models.ParseActionType(string(action.ActionType))
		action.ActionType = t
		if err != nil {
			if c.rejectUnknown {
				return fmt.Errorf("%w: %w", ErrInvalidAction, err)
			}
			c.logger.Warn().Str("action_type", t.String()).Msg("Unknown action type accepted with weight 0")
		}
	}

	if verr := validation.ValidateStruct(action); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAction, verr)
	}

	if action.Timestamp.IsZero() {
		action.Timestamp = c.now().UTC()
	}
	return nil
}

func (c *Collector) deliver(ctx context.Context, logger *zerolog.Logger, action *models.UserAction) error {
	if c.wal == nil {
		return c.publisher.PublishAction(ctx, action, "")
	}

	if c.backlog.Load() {
		queued, err := c.enqueueBehindBacklog(ctx, logger, action)
		if queued || err != nil {
			return err
		}
	}

	entryID, err := c.wal.Write(ctx, action)
	if err != nil {
		// Publishing without the WAL beats losing the action.
		logger.Error().Err(err).Msg("WAL write failed, publishing directly")
		return c.publisher.PublishAction(ctx, action, "")
	}

	// Keep the retry loop off the entry while the first attempt is in flight.
	if c.wal.TryClaimEntry(entryID) {
		defer c.wal.ReleaseEntry(entryID)
	}

	if err := c.publisher.PublishAction(ctx, action, entryID); err != nil {
		c.backlog.Store(true)
		c.deferred.Add(1)
		logger.Warn().Err(err).Str("wal_entry_id", entryID).Msg("Publish failed, entry will be retried")
		return nil
	}

	if err := c.wal.Confirm(ctx, entryID); err != nil {
		logger.Warn().Err(err).Str("wal_entry_id", entryID).Msg("WAL confirm failed")
	}
	return nil
}

// enqueueBehindBacklog writes action to the WAL for the retry loop when older
// entries are still pending. It reports false once the backlog has drained,
// clearing the flag so the caller publishes directly.
func (c *Collector) enqueueBehindBacklog(ctx context.Context, logger *zerolog.Logger, action *models.UserAction) (bool, error) {
	c.backlogMu.Lock()
	defer c.backlogMu.Unlock()

	if !c.backlog.Load() {
		return false, nil
	}
	oldest, err := c.wal.OldestPending(ctx)
	if err == nil && oldest == "" {
		c.backlog.Store(false)
		logger.Info().Msg("WAL backlog drained, publishing directly")
		return false, nil
	}

	entryID, err := c.wal.Write(ctx, action)
	if err != nil {
		// Publishing now would overtake the backlog.
		logger.Error().Err(err).Msg("WAL write failed while backlogged")
		return false, fmt.Errorf("%w: %w", ErrBufferUnavailable, err)
	}
	c.deferred.Add(1)
	logger.Debug().Str("wal_entry_id", entryID).Msg("Action queued behind WAL backlog")
	return true, nil
}

// WALPublisher returns the publisher the WAL retry loop uses to resend
// pending entries. The entry id is reused as the message id.
func (c *Collector) WALPublisher() wal.Publisher {
	return wal.PublisherFunc(func(ctx context.Context, entry *wal.Entry) error {
		var action models.UserAction
		if err := entry.UnmarshalPayload(&action); err != nil {
			return err
		}
		return c.publisher.PublishAction(ctx, &action, entry.ID)
	})
}

// WAL returns the buffer, or nil when it is disabled.
func (c *Collector) WAL() *wal.BadgerWAL {
	return c.wal
}

// Stats returns ingest counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Collected:       c.collected.Load(),
		Rejected:        c.rejected.Load(),
		DeferredPublish: c.deferred.Load(),
		WALEnabled:      c.wal != nil,
		Backlogged:      c.backlog.Load(),
	}
}
