// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

// Metadata keys set on every published message.
const (
	MetadataKind          = "kind"
	MetadataSchemaVersion = "schema_version"
)

// Publisher wraps a Watermill publisher with circuit breaker protection and
// the record encoding of both streams.
type Publisher struct {
	publisher         message.Publisher
	serializer        *Serializer
	actionSubject     string
	similaritySubject string
	circuitBreaker    *gobreaker.CircuitBreaker[interface{}]
	mu                sync.RWMutex
	closed            bool
}

// NewPublisher creates a Watermill NATS publisher over JetStream.
// Streams are expected to exist already (see StreamInitializer).
func NewPublisher(cfg *PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.Connection.URL,
		NatsOptions: connectionOptions(&cfg.Connection),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return NewPublisherFrom(pub, cfg)
}

// NewPublisherFrom wraps an existing Watermill publisher, for example a
// gochannel pub/sub in tests.
func NewPublisherFrom(pub message.Publisher, cfg *PublisherConfig) (*Publisher, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	actionSubject, similaritySubject := cfg.ActionSubject, cfg.SimilaritySubject
	if actionSubject == "" {
		actionSubject = DefaultActionSubject
	}
	if similaritySubject == "" {
		similaritySubject = DefaultSimilaritySubject
	}
	return &Publisher{
		publisher:         pub,
		serializer:        NewSerializer(),
		actionSubject:     actionSubject,
		similaritySubject: similaritySubject,
	}, nil
}

// SetCircuitBreaker configures the circuit breaker for publish operations.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// Publish sends messages to topic. Each message UUID doubles as Nats-Msg-Id
// unless one is already set. Failures are wrapped with ErrTransientStream.
func (p *Publisher) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
		msg.SetContext(ctx)
	}

	_, err := ExecuteWithBreakerContext(ctx, p.circuitBreaker, func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msgs...)
	})
	metrics.RecordPublish(topic, err)
	if err != nil {
		return transient("publish to "+topic, err)
	}
	return nil
}

// PublishAction appends one user action to the action stream. msgID is the
// broker deduplication key; an empty msgID gets a fresh UUID.
func (p *Publisher) PublishAction(ctx context.Context, action *models.UserAction, msgID string) error {
	data, err := p.serializer.MarshalAction(action)
	if err != nil {
		return err
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	msg := message.NewMessage(msgID, data)
	msg.Metadata.Set(MetadataKind, "user_action")
	msg.Metadata.Set(MetadataSchemaVersion, strconv.Itoa(SchemaVersion))
	return p.Publish(ctx, p.actionSubject, msg)
}

// PublishSimilarities appends deltas to the similarity stream in order.
func (p *Publisher) PublishSimilarities(ctx context.Context, deltas []models.SimilarityDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	msgs := make([]*message.Message, 0, len(deltas))
	for i := range deltas {
		data, err := p.serializer.MarshalSimilarity(&deltas[i])
		if err != nil {
			return err
		}
		msg := message.NewMessage(uuid.NewString(), data)
		msg.Metadata.Set(MetadataKind, "similarity_delta")
		msg.Metadata.Set(MetadataSchemaVersion, strconv.Itoa(SchemaVersion))
		msgs = append(msgs, msg)
	}
	return p.Publish(ctx, p.similaritySubject, msgs...)
}

// ActionSubject returns the subject user actions are published to.
func (p *Publisher) ActionSubject() string { return p.actionSubject }

// SimilaritySubject returns the subject similarity deltas are published to.
func (p *Publisher) SimilaritySubject() string { return p.similaritySubject }

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}
