// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/tandem/internal/logging"
)

// Record is one message received from a stream.
type Record interface {
	Data() []byte
	// Ack commits the record; it will not be delivered again.
	Ack() error
	// Nak asks for redelivery.
	Nak() error
}

// RecordSource yields batches of records. Fetch returns at most max records
// and waits no longer than wait; an empty batch is not an error.
type RecordSource interface {
	Fetch(ctx context.Context, max int, wait time.Duration) ([]Record, error)
}

// ConsumerFactory is the subset of jetstream.JetStream JetStreamSource needs.
type ConsumerFactory interface {
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
}

// JetStreamSource is a RecordSource backed by a JetStream pull consumer.
type JetStreamSource struct {
	js  ConsumerFactory
	cfg ConsumerConfig

	mu       sync.Mutex
	consumer jetstream.Consumer

	// lastAcked is the highest stream sequence acknowledged through this
	// source. A replay consumer lost on the broker resumes after it.
	lastAcked atomic.Uint64
}

// NewJetStreamSource validates cfg and creates the consumer.
func NewJetStreamSource(ctx context.Context, js ConsumerFactory, cfg ConsumerConfig) (*JetStreamSource, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: JetStream context required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &JetStreamSource{js: js, cfg: cfg}
	if _, err := s.ensureConsumer(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JetStreamSource) consumerConfig() jetstream.ConsumerConfig {
	cc := jetstream.ConsumerConfig{
		Durable:       s.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
		MaxAckPending: s.cfg.MaxAckPending,
		FilterSubject: s.cfg.Subject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if s.cfg.Durable == "" {
		cc.InactiveThreshold = s.cfg.InactiveThreshold
		if cc.InactiveThreshold == 0 {
			cc.InactiveThreshold = 5 * time.Minute
		}
	}
	if last := s.lastAcked.Load(); s.cfg.Replay && last > 0 {
		cc.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cc.OptStartSeq = last + 1
	}
	return cc
}

func (s *JetStreamSource) ensureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumer != nil {
		return s.consumer, nil
	}
	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, s.consumerConfig())
	if err != nil {
		return nil, transient("create consumer on "+s.cfg.Stream, err)
	}
	s.consumer = cons
	logging.Debug().
		Str("stream", s.cfg.Stream).
		Str("durable", s.cfg.Durable).
		Bool("replay", s.cfg.Replay).
		Uint64("resume_after", s.lastAcked.Load()).
		Msg("JetStream consumer ready")
	return cons, nil
}

func (s *JetStreamSource) dropConsumer() {
	s.mu.Lock()
	s.consumer = nil
	s.mu.Unlock()
}

// Fetch pulls up to max records, waiting at most wait.
func (s *JetStreamSource) Fetch(ctx context.Context, max int, wait time.Duration) ([]Record, error) {
	cons, err := s.ensureConsumer(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := cons.Fetch(max, jetstream.FetchMaxWait(wait))
	if err != nil {
		if errors.Is(err, jetstream.ErrConsumerNotFound) || errors.Is(err, jetstream.ErrConsumerDeleted) {
			s.dropConsumer()
		}
		return nil, transient("fetch", err)
	}

	records := make([]Record, 0, max)
	for msg := range batch.Messages() {
		records = append(records, &jsRecord{msg: msg, src: s})
	}
	if err := batch.Error(); err != nil && !isEmptyFetch(err) {
		if errors.Is(err, jetstream.ErrConsumerNotFound) || errors.Is(err, jetstream.ErrConsumerDeleted) {
			s.dropConsumer()
		}
		if len(records) == 0 {
			return nil, transient("fetch", err)
		}
		logging.Debug().Err(err).Int("records", len(records)).Msg("Fetch ended early")
	}
	return records, nil
}

// isEmptyFetch reports errors that only mean the wait expired without records.
func isEmptyFetch(err error) bool {
	return errors.Is(err, jetstream.ErrNoMessages) || errors.Is(err, natsgo.ErrTimeout)
}

// LastAcked returns the highest acknowledged stream sequence.
func (s *JetStreamSource) LastAcked() uint64 {
	return s.lastAcked.Load()
}

func (s *JetStreamSource) markAcked(seq uint64) {
	for {
		cur := s.lastAcked.Load()
		if seq <= cur || s.lastAcked.CompareAndSwap(cur, seq) {
			return
		}
	}
}

type jsRecord struct {
	msg jetstream.Msg
	src *JetStreamSource
}

func (r *jsRecord) Data() []byte { return r.msg.Data() }

func (r *jsRecord) Ack() error {
	if err := r.msg.Ack(); err != nil {
		return err
	}
	if md, err := r.msg.Metadata(); err == nil {
		r.src.markAcked(md.Sequence.Stream)
	}
	return nil
}

func (r *jsRecord) Nak() error { return r.msg.Nak() }

var _ RecordSource = (*JetStreamSource)(nil)
