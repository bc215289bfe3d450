// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tandem/config.yaml",
	"/etc/tandem/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Roles: []string{RoleCollector, RoleAggregator, RoleAnalyzer},
		NATS: NATSConfig{
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamRetentionDays: 30,
			ActionStream:        "TANDEM_ACTIONS",
			ActionSubject:       "actions.user",
			SimilarityStream:    "TANDEM_SIMILARITY",
			SimilaritySubject:   "similarity.events",
			FetchBatch:          500,
			PollWait:            time.Second,
			AckWait:             30 * time.Second,
			MaxDeliver:          -1, // redeliver until processed
		},
		Database: DatabaseConfig{
			Path:         "/data/tandem.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			QueryTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			Host:                 "0.0.0.0",
			Port:                 9090,
			MaxConcurrentStreams: 256,
		},
		Aggregator: AggregatorConfig{
			KeepMaxWeight: false,
			ConsumerName:  "aggregator",
		},
		Analyzer: AnalyzerConfig{
			ActionConsumer:     "analyzer-actions",
			SimilarityConsumer: "analyzer-similarity",
		},
		Collector: CollectorConfig{
			RejectUnknownActions: false,
		},
		WAL: WALConfig{
			Enabled:       true,
			Path:          "/data/wal",
			SyncWrites:    true,
			RetryInterval: 30 * time.Second,
			MaxRetries:    100,
			RetryBackoff:  5 * time.Second,
			EntryTTL:      7 * 24 * time.Hour,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Security: SecurityConfig{
			RateLimitReqs:     600,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults
//  2. Config file (optional YAML)
//  3. Environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	normalizeRoles(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"roles",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// normalizeRoles lower-cases role names and drops duplicates.
func normalizeRoles(cfg *Config) {
	seen := make(map[string]bool, len(cfg.Roles))
	roles := make([]string, 0, len(cfg.Roles))
	for _, r := range cfg.Roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	cfg.Roles = roles
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - TANDEM_ROLES -> roles
//   - NATS_URL -> nats.url
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"tandem_roles": "roles",

		// NATS / JetStream
		"nats_url":                "nats.url",
		"nats_embedded":           "nats.embedded_server",
		"nats_store_dir":          "nats.store_dir",
		"nats_max_memory":         "nats.max_memory",
		"nats_max_store":          "nats.max_store",
		"nats_retention_days":     "nats.stream_retention_days",
		"nats_action_stream":      "nats.action_stream",
		"nats_action_subject":     "nats.action_subject",
		"nats_similarity_stream":  "nats.similarity_stream",
		"nats_similarity_subject": "nats.similarity_subject",
		"nats_fetch_batch":        "nats.fetch_batch",
		"nats_poll_wait":          "nats.poll_wait",
		"nats_ack_wait":           "nats.ack_wait",
		"nats_max_deliver":        "nats.max_deliver",

		// Database
		"duckdb_path":          "database.path",
		"duckdb_max_memory":    "database.max_memory",
		"duckdb_threads":       "database.threads",
		"duckdb_query_timeout": "database.query_timeout",

		// HTTP server
		"http_enabled": "server.enabled",
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// gRPC
		"grpc_host":                   "grpc.host",
		"grpc_port":                   "grpc.port",
		"grpc_max_concurrent_streams": "grpc.max_concurrent_streams",

		// Aggregator
		"aggregator_keep_max_weight": "aggregator.keep_max_weight",
		"aggregator_consumer_name":   "aggregator.consumer_name",

		// Analyzer
		"analyzer_action_consumer":     "analyzer.action_consumer",
		"analyzer_similarity_consumer": "analyzer.similarity_consumer",

		// Collector
		"collector_reject_unknown_actions": "collector.reject_unknown_actions",

		// WAL
		"wal_enabled":        "wal.enabled",
		"wal_path":           "wal.path",
		"wal_sync_writes":    "wal.sync_writes",
		"wal_retry_interval": "wal.retry_interval",
		"wal_max_retries":    "wal.max_retries",
		"wal_retry_backoff":  "wal.retry_backoff",
		"wal_entry_ttl":      "wal.entry_ttl",

		// Circuit breaker
		"circuit_breaker_max_requests":      "circuit_breaker.max_requests",
		"circuit_breaker_interval":          "circuit_breaker.interval",
		"circuit_breaker_timeout":           "circuit_breaker.timeout",
		"circuit_breaker_failure_threshold": "circuit_breaker.failure_threshold",

		// Security
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables never reach the config.
	return ""
}
