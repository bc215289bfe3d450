// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package wal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/tandem/internal/config"
)

type testAction struct {
	UserID  int64  `json:"user_id"`
	EventID int64  `json:"event_id"`
	Type    string `json:"action_type"`
}

func createTestConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "wal"))
	cfg.SyncWrites = false
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetries = 3
	cfg.EntryTTL = time.Hour
	return cfg
}

func openTestWAL(t *testing.T, cfg Config) *BadgerWAL {
	t.Helper()
	w, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestConfig_Validate(t *testing.T) {
	base := DefaultConfig("/tmp/wal")
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty path", func(c *Config) { c.Path = "" }, true},
		{"zero retry interval", func(c *Config) { c.RetryInterval = 0 }, true},
		{"zero max retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"zero backoff", func(c *Config) { c.RetryBackoff = 0 }, true},
		{"zero ttl", func(c *Config) { c.EntryTTL = 0 }, true},
		{"one compactor", func(c *Config) { c.NumCompactors = 1 }, true},
		{"tiny memtable", func(c *Config) { c.MemTableSize = 1024 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(&config.WALConfig{
		Enabled:       true,
		Path:          "/data/wal",
		RetryInterval: 10 * time.Second,
		MaxRetries:    7,
	})
	if cfg.Path != "/data/wal" || cfg.RetryInterval != 10*time.Second || cfg.MaxRetries != 7 {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
	if cfg.RetryBackoff != 5*time.Second {
		t.Errorf("RetryBackoff = %v, want default 5s", cfg.RetryBackoff)
	}
}

func TestWriteConfirm(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	id, err := w.Write(ctx, &testAction{UserID: 1, EventID: 10, Type: "VIEW"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("GetPending() = %+v, want entry %s", pending, id)
	}
	var got testAction
	if err := pending[0].UnmarshalPayload(&got); err != nil {
		t.Fatalf("UnmarshalPayload() error = %v", err)
	}
	if got.EventID != 10 || got.Type != "VIEW" {
		t.Errorf("payload = %+v", got)
	}

	if err := w.Confirm(ctx, id); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if err := w.Confirm(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Confirm() error = %v, want ErrEntryNotFound", err)
	}

	stats := w.Stats()
	if stats.PendingCount != 0 || stats.ConfirmedCount != 1 {
		t.Errorf("Stats() = %+v, want 0 pending, 1 confirmed", stats)
	}
	if stats.TotalWrites != 1 || stats.TotalConfirms != 1 {
		t.Errorf("counters = %+v", stats)
	}
}

func TestWrite_Errors(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	if _, err := w.Write(ctx, nil); !errors.Is(err, ErrNilPayload) {
		t.Errorf("Write(nil) error = %v, want ErrNilPayload", err)
	}
	if err := w.Confirm(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("Confirm(\"\") error = %v, want ErrEmptyEntryID", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := w.Write(ctx, &testAction{}); !errors.Is(err, ErrWALClosed) {
		t.Errorf("Write after close error = %v, want ErrWALClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestGetPending_OldestFirst(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	var ids []string
	for i := int64(1); i <= 5; i++ {
		id, err := w.Write(ctx, &testAction{UserID: 1, EventID: i})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != len(ids) {
		t.Fatalf("got %d pending, want %d", len(pending), len(ids))
	}
	for i := range ids {
		if pending[i].ID != ids[i] {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, ids[i])
		}
	}
}

func TestOldestPending(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	if id, err := w.OldestPending(ctx); err != nil || id != "" {
		t.Fatalf("OldestPending() on empty WAL = (%q, %v), want empty", id, err)
	}

	first, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1})
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.Write(ctx, &testAction{UserID: 1, EventID: 2})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		confirm string
		want    string
	}{
		{"oldest of two", "", first},
		{"after confirming the oldest", first, second},
		{"after confirming both", second, ""},
	}
	for _, tt := range tests {
		if tt.confirm != "" {
			if err := w.Confirm(ctx, tt.confirm); err != nil {
				t.Fatal(err)
			}
		}
		got, err := w.OldestPending(ctx)
		if err != nil {
			t.Fatalf("%s: OldestPending() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: OldestPending() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPendingSurvivesReopen(t *testing.T) {
	cfg := createTestConfig(t)
	ctx := context.Background()

	w, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	id, err := w.Write(ctx, &testAction{UserID: 2, EventID: 20})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w = openTestWAL(t, cfg)
	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Errorf("after reopen pending = %+v, want %s", pending, id)
	}
}

func TestUpdateAttemptAndDelete(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	id, err := w.Write(ctx, &testAction{UserID: 1, EventID: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.UpdateAttempt(ctx, id, "nats: timeout"); err != nil {
		t.Fatalf("UpdateAttempt() error = %v", err)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "nats: timeout" || pending[0].LastAttemptAt.IsZero() {
		t.Errorf("entry after attempt = %+v", pending[0])
	}

	if err := w.DeleteEntry(ctx, id); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if err := w.DeleteEntry(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second DeleteEntry() error = %v, want ErrEntryNotFound", err)
	}
	if err := w.UpdateAttempt(ctx, id, "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("UpdateAttempt on deleted entry error = %v", err)
	}
}

func TestCompact(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := w.Write(ctx, &testAction{UserID: 1, EventID: int64(i + 1)})
		if err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			if err := w.Confirm(ctx, id); err != nil {
				t.Fatal(err)
			}
		}
	}

	deleted, err := w.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Compact() deleted %d, want 2", deleted)
	}
	stats := w.Stats()
	if stats.PendingCount != 1 || stats.ConfirmedCount != 0 {
		t.Errorf("Stats() after compaction = %+v", stats)
	}
	if stats.LastCompaction.IsZero() {
		t.Error("LastCompaction not set")
	}
}

func TestClaimEntry(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))

	if !w.TryClaimEntry("a") {
		t.Fatal("first claim should succeed")
	}
	if w.TryClaimEntry("a") {
		t.Error("second claim should fail while held")
	}
	w.ReleaseEntry("a")
	if !w.TryClaimEntry("a") {
		t.Error("claim after release should succeed")
	}
}
