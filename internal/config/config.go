// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package config

import (
	"time"
)

// Role names accepted in Config.Roles.
const (
	RoleCollector  = "collector"
	RoleAggregator = "aggregator"
	RoleAnalyzer   = "analyzer"
)

// Config holds all application configuration.
type Config struct {
	Roles          []string             `koanf:"roles"`
	NATS           NATSConfig           `koanf:"nats"`
	Database       DatabaseConfig       `koanf:"database"`
	Server         ServerConfig         `koanf:"server"`
	GRPC           GRPCConfig           `koanf:"grpc"`
	Aggregator     AggregatorConfig     `koanf:"aggregator"`
	Analyzer       AnalyzerConfig       `koanf:"analyzer"`
	Collector      CollectorConfig      `koanf:"collector"`
	WAL            WALConfig            `koanf:"wal"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Security       SecurityConfig       `koanf:"security"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// NATSConfig holds the broker connection and stream layout.
type NATSConfig struct {
	// URL is the NATS server connection URL.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server with JetStream.
	// If false, expects an external server at URL.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	// StreamRetentionDays bounds how long records stay on both streams.
	// The aggregator rebuilds its state from the action stream on restart,
	// so this is also the aggregator's memory horizon.
	StreamRetentionDays int `koanf:"stream_retention_days"`

	ActionStream      string `koanf:"action_stream"`
	ActionSubject     string `koanf:"action_subject"`
	SimilarityStream  string `koanf:"similarity_stream"`
	SimilaritySubject string `koanf:"similarity_subject"`

	// FetchBatch is the maximum number of records returned by one poll.
	FetchBatch int `koanf:"fetch_batch"`

	// PollWait is the bounded wait of one poll.
	PollWait time.Duration `koanf:"poll_wait"`

	AckWait    time.Duration `koanf:"ack_wait"`
	MaxDeliver int           `koanf:"max_deliver"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	MaxMemory    string        `koanf:"max_memory"`
	Threads      int           `koanf:"threads"` // 0 = use NumCPU
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// GRPCConfig holds the RPC listener settings.
type GRPCConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// MaxConcurrentStreams caps concurrent query streams per connection.
	MaxConcurrentStreams uint32 `koanf:"max_concurrent_streams"`
}

// AggregatorConfig configures the co-occurrence state machine.
type AggregatorConfig struct {
	// KeepMaxWeight keeps the highest weight a user ever gave an event instead
	// of overwriting it with the latest action's weight.
	KeepMaxWeight bool `koanf:"keep_max_weight"`

	// ConsumerName prefixes the ephemeral replay consumer's name.
	ConsumerName string `koanf:"consumer_name"`
}

// AnalyzerConfig configures the store ingest consumers.
type AnalyzerConfig struct {
	ActionConsumer     string `koanf:"action_consumer"`
	SimilarityConsumer string `koanf:"similarity_consumer"`
}

// CollectorConfig configures ingest.
type CollectorConfig struct {
	// RejectUnknownActions rejects action types outside VIEW/REGISTER/LIKE at
	// ingest instead of passing them on with weight 0.
	RejectUnknownActions bool `koanf:"reject_unknown_actions"`
}

// WALConfig configures the collector's durable buffer.
type WALConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
	EntryTTL      time.Duration `koanf:"entry_ttl"`
}

// CircuitBreakerConfig applies to both the stream publisher and store queries.
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller adds file:line to every log line.
	Caller bool `koanf:"caller"`
}

// HasRole reports whether role is enabled.
func (c *Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NeedsStore reports whether any enabled role touches DuckDB.
func (c *Config) NeedsStore() bool {
	return c.HasRole(RoleAnalyzer)
}
