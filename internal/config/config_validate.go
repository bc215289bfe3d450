// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateRoles,
		c.validateNATS,
		c.validateDatabase,
		c.validateServer,
		c.validateGRPC,
		c.validateWAL,
		c.validateCircuitBreaker,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRoles() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("TANDEM_ROLES must name at least one of collector, aggregator, analyzer")
	}
	for _, r := range c.Roles {
		switch r {
		case RoleCollector, RoleAggregator, RoleAnalyzer:
		default:
			return fmt.Errorf("TANDEM_ROLES contains unknown role %q", r)
		}
	}
	return nil
}

// NATS limit constants
const (
	natsMinMemory    = 64 * 1024 * 1024  // 64MB
	natsMinStore     = 100 * 1024 * 1024 // 100MB
	natsMaxRetention = 3650
	natsMaxFetch     = 10000
	natsMinPollWait  = 10 * time.Millisecond
	natsMaxPollWait  = time.Minute
)

func (c *Config) validateNATS() error {
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.MaxMemory < natsMinMemory {
			return fmt.Errorf("NATS_MAX_MEMORY must be at least 64MB (67108864 bytes)")
		}
		if c.NATS.MaxStore < natsMinStore {
			return fmt.Errorf("NATS_MAX_STORE must be at least 100MB (104857600 bytes)")
		}
		if c.NATS.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
		}
	}
	if c.NATS.StreamRetentionDays < 1 || c.NATS.StreamRetentionDays > natsMaxRetention {
		return fmt.Errorf("NATS_RETENTION_DAYS must be between 1 and %d", natsMaxRetention)
	}
	if c.NATS.ActionSubject == "" || c.NATS.SimilaritySubject == "" {
		return fmt.Errorf("NATS_ACTION_SUBJECT and NATS_SIMILARITY_SUBJECT are required")
	}
	if c.NATS.ActionSubject == c.NATS.SimilaritySubject {
		return fmt.Errorf("action and similarity subjects must differ")
	}
	if c.NATS.ActionStream == "" || c.NATS.SimilarityStream == "" || c.NATS.ActionStream == c.NATS.SimilarityStream {
		return fmt.Errorf("NATS_ACTION_STREAM and NATS_SIMILARITY_STREAM must be set and distinct")
	}
	if c.NATS.FetchBatch < 1 || c.NATS.FetchBatch > natsMaxFetch {
		return fmt.Errorf("NATS_FETCH_BATCH must be between 1 and %d", natsMaxFetch)
	}
	if c.NATS.PollWait < natsMinPollWait || c.NATS.PollWait > natsMaxPollWait {
		return fmt.Errorf("NATS_POLL_WAIT must be between 10ms and 1m")
	}
	if c.NATS.AckWait <= c.NATS.PollWait {
		return fmt.Errorf("NATS_ACK_WAIT must exceed NATS_POLL_WAIT")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if !c.NeedsStore() {
		return nil
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required when the analyzer role is enabled")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("DUCKDB_QUERY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive unless DISABLE_RATE_LIMIT=true")
	}
	return nil
}

func (c *Config) validateGRPC() error {
	if !c.HasRole(RoleCollector) && !c.HasRole(RoleAnalyzer) {
		return nil
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("GRPC_PORT must be between 1 and 65535")
	}
	if c.Server.Enabled && c.GRPC.Port == c.Server.Port && c.GRPC.Host == c.Server.Host {
		return fmt.Errorf("GRPC_PORT and HTTP_PORT must differ")
	}
	return nil
}

func (c *Config) validateWAL() error {
	if !c.WAL.Enabled || !c.HasRole(RoleCollector) {
		return nil
	}
	if c.WAL.Path == "" {
		return fmt.Errorf("WAL_PATH is required when WAL_ENABLED=true")
	}
	if c.WAL.RetryInterval <= 0 {
		return fmt.Errorf("WAL_RETRY_INTERVAL must be positive")
	}
	if c.WAL.MaxRetries < 1 {
		return fmt.Errorf("WAL_MAX_RETRIES must be at least 1")
	}
	return nil
}

func (c *Config) validateCircuitBreaker() error {
	if c.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true, "off": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, off")
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}
