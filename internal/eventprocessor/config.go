// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"fmt"
	"time"
)

// Default stream layout.
const (
	DefaultActionStream      = "TANDEM_ACTIONS"
	DefaultActionSubject     = "actions.user"
	DefaultSimilarityStream  = "TANDEM_SIMILARITY"
	DefaultSimilaritySubject = "similarity.events"
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int // -1 picks a random port
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
	NoLog             bool
}

// DefaultServerConfig returns production defaults for embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   1 << 30,  // 1GB
		JetStreamMaxStore: 10 << 30, // 10GB
	}
}

// ConnectionConfig holds client connection settings.
type ConnectionConfig struct {
	URL             string
	Name            string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
}

// DefaultConnectionConfig returns production defaults for a client connection.
func DefaultConnectionConfig(url string) ConnectionConfig {
	return ConnectionConfig{
		URL:             url,
		Name:            "tandem",
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024, // 8MB
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	Connection        ConnectionConfig
	ActionSubject     string
	SimilaritySubject string
	EnableTrackMsgID  bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		Connection:        DefaultConnectionConfig(url),
		ActionSubject:     DefaultActionSubject,
		SimilaritySubject: DefaultSimilaritySubject,
		EnableTrackMsgID:  true,
	}
}

// StreamConfig defines one JetStream stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// ActionStreamConfig returns the stream carrying user actions.
func ActionStreamConfig(name, subject string, maxAge time.Duration) StreamConfig {
	return StreamConfig{
		Name:            name,
		Subjects:        []string{subject},
		MaxAge:          maxAge,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// SimilarityStreamConfig returns the stream carrying similarity deltas.
func SimilarityStreamConfig(name, subject string, maxAge time.Duration) StreamConfig {
	cfg := ActionStreamConfig(name, subject, maxAge)
	cfg.DuplicateWindow = time.Minute
	return cfg
}

// ConsumerConfig describes a pull consumer.
type ConsumerConfig struct {
	Stream  string
	Subject string

	// Durable names a consumer that survives restarts. Empty means an
	// ephemeral consumer.
	Durable string

	// Replay starts an ephemeral consumer at the first record of the stream.
	Replay bool

	AckWait    time.Duration
	MaxDeliver int

	// MaxAckPending bounds unacknowledged records; it should be at least FetchBatch.
	MaxAckPending int

	// InactiveThreshold is how long the broker keeps an idle ephemeral consumer.
	InactiveThreshold time.Duration
}

// Validate checks the consumer description.
func (c *ConsumerConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("%w: consumer stream is required", ErrInvalidConfig)
	}
	if c.Replay && c.Durable != "" {
		return fmt.Errorf("%w: replay consumers are ephemeral, got durable %q", ErrInvalidConfig, c.Durable)
	}
	if !c.Replay && c.Durable == "" {
		return fmt.Errorf("%w: non-replay consumers need a durable name", ErrInvalidConfig)
	}
	return nil
}

// LoopConfig configures a ConsumerLoop.
type LoopConfig struct {
	Name      string
	BatchSize int
	PollWait  time.Duration

	// Backoff is the pause after a failed fetch or a failed batch.
	Backoff time.Duration

	// MaxBackoff caps exponential growth of Backoff across consecutive failures.
	MaxBackoff time.Duration
}

// DefaultLoopConfig returns defaults for a consumer loop.
func DefaultLoopConfig(name string) LoopConfig {
	return LoopConfig{
		Name:       name,
		BatchSize:  500,
		PollWait:   time.Second,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
