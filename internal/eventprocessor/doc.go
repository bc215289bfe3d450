// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

/*
Package eventprocessor is the stream plumbing shared by every role.

Two JetStream streams carry all inter-role traffic:

	TANDEM_ACTIONS     actions.user        UserAction records (collector → aggregator, analyzer)
	TANDEM_SIMILARITY  similarity.events   SimilarityDelta records (aggregator → analyzer)

# Publishing

Publisher wraps a Watermill NATS publisher (watermill-nats/v2) configured for
JetStream with Nats-Msg-Id tracking, so redelivered publishes within the
stream's duplicate window are dropped by the broker. Every publish runs
through a gobreaker circuit breaker.

# Consuming

ConsumerLoop is a single sequential consumer. Each iteration polls the
RecordSource with a bounded wait, hands the batch to a BatchHandler, and
acknowledges the batch only after the handler returned successfully. A failed
batch is negatively acknowledged and redelivered. JetStreamSource implements
RecordSource with a JetStream pull consumer:

  - durable consumers resume from the last acknowledged record
  - replay consumers (DeliverAll) start from the first record on every start

Cancelling the loop's context is a normal shutdown: the in-flight batch is
finished and committed before Run returns nil.

# Serialization

Records are JSON (goccy/go-json) with a schema_version field. Records that
fail to decode or validate surface as *MalformedRecordError; handlers skip
and acknowledge them.
*/
package eventprocessor
