// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects payloads and can fail a set number of batches.
type recordingHandler struct {
	mu       sync.Mutex
	seen     []string
	failures int
	block    chan struct{}
	started  chan struct{}
}

func (h *recordingHandler) HandleBatch(ctx context.Context, batch []Record) (BatchResult, error) {
	if h.started != nil {
		select {
		case h.started <- struct{}{}:
		default:
		}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return BatchResult{}, errors.New("sink unavailable")
	}
	var res BatchResult
	for _, r := range batch {
		if string(r.Data()) == "bad" {
			res.Malformed++
			continue
		}
		h.seen = append(h.seen, string(r.Data()))
		res.Processed++
	}
	return res, nil
}

func (h *recordingHandler) Seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func testLoopConfig() LoopConfig {
	return LoopConfig{
		Name:       "test",
		BatchSize:  2,
		PollWait:   20 * time.Millisecond,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func runLoop(t *testing.T, loop *ConsumerLoop) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop")
			return nil
		}
	}
}

func TestConsumerLoop_ProcessesInOrderAndCommits(t *testing.T) {
	src := NewMemorySource()
	src.Push([]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e"))
	h := &recordingHandler{}

	loop, err := NewConsumerLoop(src, h, testLoopConfig())
	if err != nil {
		t.Fatal(err)
	}
	stop := runLoop(t, loop)
	waitFor(t, func() bool { return len(src.Acked()) == 5 })
	if err := stop(); err != nil {
		t.Errorf("Run() on shutdown = %v, want nil", err)
	}

	got := h.Seen()
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("seen %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	stats := loop.Stats()
	if stats.RecordsProcessed != 5 || stats.BatchesCommitted != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Running {
		t.Error("loop should report not running after stop")
	}
}

func TestConsumerLoop_MalformedRecordsAreAckedAndSkipped(t *testing.T) {
	src := NewMemorySource()
	src.Push([]byte("a"), []byte("bad"), []byte("b"))
	h := &recordingHandler{}

	loop, _ := NewConsumerLoop(src, h, testLoopConfig())
	stop := runLoop(t, loop)
	waitFor(t, func() bool { return len(src.Acked()) == 3 })
	_ = stop()

	if got := h.Seen(); len(got) != 2 {
		t.Errorf("seen %v, want [a b]", got)
	}
	if s := loop.Stats(); s.RecordsMalformed != 1 {
		t.Errorf("RecordsMalformed = %d, want 1", s.RecordsMalformed)
	}
}

func TestConsumerLoop_FailedBatchIsRedelivered(t *testing.T) {
	src := NewMemorySource()
	src.Push([]byte("a"), []byte("b"), []byte("c"))
	h := &recordingHandler{failures: 2}

	loop, _ := NewConsumerLoop(src, h, testLoopConfig())
	stop := runLoop(t, loop)
	waitFor(t, func() bool { return len(src.Acked()) == 3 })
	_ = stop()

	got := h.Seen()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("seen %v, want [a b c] in order", got)
	}
	if s := loop.Stats(); s.BatchesFailed != 2 {
		t.Errorf("BatchesFailed = %d, want 2", s.BatchesFailed)
	}
}

func TestConsumerLoop_FetchErrorsAreRetried(t *testing.T) {
	src := NewMemorySource()
	src.FailNextFetches(3, errors.New("connection reset"))
	src.Push([]byte("a"))
	h := &recordingHandler{}

	loop, _ := NewConsumerLoop(src, h, testLoopConfig())
	stop := runLoop(t, loop)
	waitFor(t, func() bool { return len(src.Acked()) == 1 })
	_ = stop()

	if s := loop.Stats(); s.FetchErrors != 3 {
		t.Errorf("FetchErrors = %d, want 3", s.FetchErrors)
	}
}

func TestConsumerLoop_ShutdownFinishesInFlightBatch(t *testing.T) {
	src := NewMemorySource()
	src.Push([]byte("a"), []byte("b"))
	h := &recordingHandler{block: make(chan struct{}), started: make(chan struct{}, 1)}

	loop, _ := NewConsumerLoop(src, h, testLoopConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-h.started
	cancel()
	close(h.block)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	if n := len(src.Acked()); n != 2 {
		t.Errorf("acked %d records, want the in-flight batch of 2 committed", n)
	}
}

func TestConsumerLoop_RejectsSecondRun(t *testing.T) {
	src := NewMemorySource()
	loop, _ := NewConsumerLoop(src, &recordingHandler{}, testLoopConfig())
	stop := runLoop(t, loop)
	waitFor(t, loop.IsRunning)

	if err := loop.Run(context.Background()); err == nil {
		t.Error("second Run should fail while the first is active")
	}
	_ = stop()
}

func TestNewConsumerLoop_Validation(t *testing.T) {
	if _, err := NewConsumerLoop(nil, &recordingHandler{}, testLoopConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil source: %v", err)
	}
	if _, err := NewConsumerLoop(NewMemorySource(), nil, testLoopConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil handler: %v", err)
	}
	loop, err := NewConsumerLoop(NewMemorySource(), &recordingHandler{}, LoopConfig{Name: "defaults"})
	if err != nil {
		t.Fatal(err)
	}
	if loop.cfg.BatchSize != 500 || loop.cfg.PollWait != time.Second {
		t.Errorf("defaults not applied: %+v", loop.cfg)
	}
}
