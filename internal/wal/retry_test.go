// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package wal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	failures  int
}

func (p *recordingPublisher) PublishEntry(_ context.Context, entry *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: no responders")
	}
	p.published = append(p.published, entry.ID)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{20, maxRetryBackoff},
		{100, maxRetryBackoff},
	}
	for _, tt := range tests {
		if got := backoff(time.Second, tt.attempts); got != tt.want {
			t.Errorf("backoff(1s, %d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryPending_PublishesAndConfirms(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if _, err := w.Write(ctx, &testAction{UserID: 1, EventID: i}); err != nil {
			t.Fatal(err)
		}
	}

	pub := &recordingPublisher{}
	res := NewRetryLoop(w, pub).RetryPending(ctx)
	if res.Pending != 3 || res.Published != 3 {
		t.Errorf("RetryPending() = %+v, want 3 pending, 3 published", res)
	}
	if w.Stats().PendingCount != 0 {
		t.Error("entries should be confirmed")
	}
}

func TestRetryPending_RecordsFailuresAndDropsAfterMaxRetries(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.MaxRetries = 2
	w := openTestWAL(t, cfg)
	ctx := context.Background()
	if _, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1}); err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{failures: 100}
	loop := NewRetryLoop(w, pub)

	for i := 0; i < 2; i++ {
		res := loop.RetryPending(ctx)
		if res.Failed != 1 {
			t.Fatalf("pass %d: %+v, want 1 failure", i, res)
		}
		time.Sleep(10 * time.Millisecond) // past the millisecond backoff
	}

	res := loop.RetryPending(ctx)
	if res.MaxRetried != 1 {
		t.Errorf("third pass = %+v, want entry dropped after max retries", res)
	}
	if w.Stats().PendingCount != 0 {
		t.Error("dropped entry should no longer be pending")
	}
}

func TestRetryPending_KeepsWriteOrderAcrossFailures(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()

	var ids []string
	for i := int64(1); i <= 3; i++ {
		id, err := w.Write(ctx, &testAction{UserID: 1, EventID: i})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	pub := &recordingPublisher{failures: 1}
	loop := NewRetryLoop(w, pub)

	res := loop.RetryPending(ctx)
	if res.Failed != 1 || res.Published != 0 || res.Held != 2 {
		t.Fatalf("first pass = %+v, want 1 failure and 2 held", res)
	}
	if pub.count() != 0 {
		t.Fatalf("published %d entries behind a failed one", pub.count())
	}

	time.Sleep(10 * time.Millisecond) // past the millisecond backoff
	res = loop.RetryPending(ctx)
	if res.Published != 3 {
		t.Fatalf("second pass = %+v, want 3 published", res)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for i := range ids {
		if pub.published[i] != ids[i] {
			t.Errorf("published[%d] = %s, want %s", i, pub.published[i], ids[i])
		}
	}
}

func TestRetryPending_HoldsEntriesBehindBackoff(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.RetryBackoff = time.Hour
	w := openTestWAL(t, cfg)
	ctx := context.Background()

	first, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.UpdateAttempt(ctx, first, "nats: timeout"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(ctx, &testAction{UserID: 1, EventID: 2}); err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{}
	res := NewRetryLoop(w, pub).RetryPending(ctx)
	if res.Skipped != 1 || res.Held != 1 || pub.count() != 0 {
		t.Errorf("RetryPending() = %+v, published %d; want newer entry held behind the backing-off one", res, pub.count())
	}
}

func TestRetryPending_SkipsClaimedEntries(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()
	id, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1})
	if err != nil {
		t.Fatal(err)
	}

	w.TryClaimEntry(id)
	pub := &recordingPublisher{}
	res := NewRetryLoop(w, pub).RetryPending(ctx)
	w.ReleaseEntry(id)

	if res.Skipped != 1 || pub.count() != 0 {
		t.Errorf("RetryPending() = %+v, published %d; want claimed entry skipped", res, pub.count())
	}
}

func TestRetryPending_DropsExpired(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.EntryTTL = time.Millisecond
	w := openTestWAL(t, cfg)
	ctx := context.Background()
	if _, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	pub := &recordingPublisher{}
	res := NewRetryLoop(w, pub).RetryPending(ctx)
	if pub.count() != 0 {
		t.Error("expired entry should not be published")
	}
	// Badger may already have expired the key itself.
	if res.Published != 0 {
		t.Errorf("RetryPending() = %+v", res)
	}
}

func TestRetryLoop_RunRecoversOnStartup(t *testing.T) {
	w := openTestWAL(t, createTestConfig(t))
	ctx := context.Background()
	if _, err := w.Write(ctx, &testAction{UserID: 1, EventID: 1}); err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{failures: 1}
	loop := NewRetryLoop(w, pub)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !loop.IsRunning() {
		t.Error("IsRunning() = false while running")
	}
	if err := loop.Run(runCtx); err == nil {
		t.Error("second Run() should fail")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if pub.count() != 1 {
		t.Errorf("published %d, want 1 after one failed attempt", pub.count())
	}
	if loop.Passes() < 2 {
		t.Errorf("Passes() = %d, want at least 2", loop.Passes())
	}
}
