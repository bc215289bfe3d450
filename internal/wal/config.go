// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package wal

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tandem/internal/config"
)

// Config holds WAL settings.
type Config struct {
	// Path is the BadgerDB directory. It must be on a durable filesystem.
	Path string

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// RetryInterval is the pause between retry passes.
	RetryInterval time.Duration

	// MaxRetries is the number of failed publishes after which an entry is dropped.
	MaxRetries int

	// RetryBackoff is the base of the per-entry exponential backoff.
	RetryBackoff time.Duration

	// EntryTTL bounds how long an unpublished entry is kept.
	EntryTTL time.Duration

	// CompactInterval is how often confirmed entries are purged.
	CompactInterval time.Duration

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration

	// BadgerDB tuning.
	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int
	GCRatio          float64
}

// DefaultConfig returns production defaults rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		SyncWrites:       true,
		RetryInterval:    30 * time.Second,
		MaxRetries:       100,
		RetryBackoff:     5 * time.Second,
		EntryTTL:         7 * 24 * time.Hour,
		CompactInterval:  time.Hour,
		CloseTimeout:     30 * time.Second,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		NumCompactors:    2,
		GCRatio:          0.5,
	}
}

// FromAppConfig maps the application WAL section onto a Config.
func FromAppConfig(c *config.WALConfig) Config {
	cfg := DefaultConfig(c.Path)
	cfg.SyncWrites = c.SyncWrites
	if c.RetryInterval > 0 {
		cfg.RetryInterval = c.RetryInterval
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.RetryBackoff > 0 {
		cfg.RetryBackoff = c.RetryBackoff
	}
	if c.EntryTTL > 0 {
		cfg.EntryTTL = c.EntryTTL
	}
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("WAL path is required")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %v", c.RetryInterval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive, got %v", c.RetryBackoff)
	}
	if c.EntryTTL <= 0 {
		return fmt.Errorf("entry TTL must be positive, got %v", c.EntryTTL)
	}
	// BadgerDB refuses fewer than two compactors.
	if c.NumCompactors < 2 {
		return fmt.Errorf("num compactors must be at least 2, got %d", c.NumCompactors)
	}
	if c.MemTableSize < 1<<20 {
		return fmt.Errorf("memtable size must be at least 1MB, got %d", c.MemTableSize)
	}
	return nil
}
