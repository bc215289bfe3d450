// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/tandem/internal/aggregator"
	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/models"
	"github.com/tomtom215/tandem/internal/validation"
	"github.com/tomtom215/tandem/internal/wal"
)

type published struct {
	action models.UserAction
	msgID  string
}

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	sent []published
}

func (f *fakePublisher) PublishAction(_ context.Context, action *models.UserAction, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.sent = append(f.sent, published{action: *action, msgID: msgID})
	return nil
}

func (f *fakePublisher) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

func openTestWAL(t *testing.T) *wal.BadgerWAL {
	t.Helper()
	cfg := wal.DefaultConfig(filepath.Join(t.TempDir(), "wal"))
	cfg.SyncWrites = false
	cfg.RetryBackoff = time.Millisecond
	w, err := wal.Open(cfg)
	if err != nil {
		t.Fatalf("wal.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCollector(t *testing.T, pub ActionPublisher, opts Options) *Collector {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	c, err := New(pub, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_NilPublisher(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, ErrNilPublisher) {
		t.Errorf("New(nil) error = %v, want ErrNilPublisher", err)
	}
}

func TestCollect_Validation(t *testing.T) {
	tests := []struct {
		name          string
		action        *models.UserAction
		rejectUnknown bool
		wantErr       bool
		wantType      models.ActionType
	}{
		{"valid", &models.UserAction{UserID: 1, EventID: 2, ActionType: "VIEW"}, false, false, models.ActionView},
		{"rpc spelling", &models.UserAction{UserID: 1, EventID: 2, ActionType: "ACTION_LIKE"}, false, false, models.ActionLike},
		{"lowercase", &models.UserAction{UserID: 1, EventID: 2, ActionType: "register"}, false, false, models.ActionRegister},
		{"unknown accepted", &models.UserAction{UserID: 1, EventID: 2, ActionType: "share"}, false, false, "SHARE"},
		{"unknown rejected", &models.UserAction{UserID: 1, EventID: 2, ActionType: "share"}, true, true, ""},
		{"missing user", &models.UserAction{EventID: 2, ActionType: "VIEW"}, false, true, ""},
		{"negative event", &models.UserAction{UserID: 1, EventID: -2, ActionType: "VIEW"}, false, true, ""},
		{"missing type", &models.UserAction{UserID: 1, EventID: 2}, false, true, ""},
		{"nil", nil, false, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			c := newTestCollector(t, pub, Options{RejectUnknownActions: tt.rejectUnknown})

			err := c.Collect(context.Background(), tt.action)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAction) {
					t.Fatalf("Collect() error = %v, want ErrInvalidAction", err)
				}
				if len(pub.messages()) != 0 {
					t.Error("rejected action was published")
				}
				if c.Stats().Rejected != 1 {
					t.Errorf("Rejected = %d, want 1", c.Stats().Rejected)
				}
				return
			}
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			msgs := pub.messages()
			if len(msgs) != 1 {
				t.Fatalf("published %d, want 1", len(msgs))
			}
			if msgs[0].action.ActionType != tt.wantType {
				t.Errorf("ActionType = %q, want %q", msgs[0].action.ActionType, tt.wantType)
			}
		})
	}
}

func TestCollect_ValidationErrorDetails(t *testing.T) {
	c := newTestCollector(t, &fakePublisher{}, Options{})
	err := c.Collect(context.Background(), &models.UserAction{EventID: 2, ActionType: "VIEW"})

	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v does not carry a RequestValidationError", err)
	}
	if verr.Fields[0].Field != "user_id" {
		t.Errorf("Field = %q, want user_id", verr.Fields[0].Field)
	}
}

func TestCollect_Timestamp(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestCollector(t, pub, Options{})
	ctx := context.Background()

	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 2, ActionType: "VIEW"}); err != nil {
		t.Fatal(err)
	}
	given := time.Date(2025, 12, 24, 8, 0, 0, 0, time.UTC)
	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 3, ActionType: "VIEW", Timestamp: given}); err != nil {
		t.Fatal(err)
	}

	msgs := pub.messages()
	if !msgs[0].action.Timestamp.Equal(fixedNow) {
		t.Errorf("missing timestamp filled with %v, want %v", msgs[0].action.Timestamp, fixedNow)
	}
	if !msgs[1].action.Timestamp.Equal(given) {
		t.Errorf("given timestamp changed to %v", msgs[1].action.Timestamp)
	}
}

func TestCollect_WithoutWAL_PublishFailure(t *testing.T) {
	pub := &fakePublisher{fail: true}
	c := newTestCollector(t, pub, Options{})

	err := c.Collect(context.Background(), &models.UserAction{UserID: 1, EventID: 2, ActionType: "LIKE"})
	if err == nil {
		t.Fatal("Collect() should return the publish error without a WAL")
	}
	if c.Stats().Collected != 0 {
		t.Error("failed action counted as collected")
	}
}

func TestCollect_WithWAL(t *testing.T) {
	w := openTestWAL(t)
	pub := &fakePublisher{}
	c := newTestCollector(t, pub, Options{WAL: w})
	ctx := context.Background()

	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 2, ActionType: "LIKE"}); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 1 || msgs[0].msgID == "" {
		t.Fatalf("published %+v, want one message keyed by the WAL entry", msgs)
	}
	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after a confirmed publish", len(pending))
	}
	if st := w.Stats(); st.TotalConfirms != 1 {
		t.Errorf("TotalConfirms = %d, want 1", st.TotalConfirms)
	}
}

func TestCollect_WithWAL_PublishFailureIsRetried(t *testing.T) {
	w := openTestWAL(t)
	pub := &fakePublisher{fail: true}
	c := newTestCollector(t, pub, Options{WAL: w})
	ctx := context.Background()

	if err := c.Collect(ctx, &models.UserAction{UserID: 7, EventID: 70, ActionType: "REGISTER"}); err != nil {
		t.Fatalf("Collect() error = %v, want nil with a WAL", err)
	}
	if c.Stats().DeferredPublish != 1 {
		t.Errorf("DeferredPublish = %d, want 1", c.Stats().DeferredPublish)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	entryID := pending[0].ID

	pub.setFail(false)
	res := wal.NewRetryLoop(w, c.WALPublisher()).RetryPending(ctx)
	if res.Published != 1 {
		t.Fatalf("RetryPending() = %+v, want one published", res)
	}

	msgs := pub.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d, want 1", len(msgs))
	}
	if msgs[0].msgID != entryID {
		t.Errorf("msgID = %q, want entry id %q", msgs[0].msgID, entryID)
	}
	if msgs[0].action.UserID != 7 || msgs[0].action.ActionType != models.ActionRegister {
		t.Errorf("retried action = %+v", msgs[0].action)
	}
	if !msgs[0].action.Timestamp.Equal(fixedNow) {
		t.Errorf("retried timestamp = %v, want %v", msgs[0].action.Timestamp, fixedNow)
	}
}

func TestCollect_WithWAL_BacklogKeepsCollectionOrder(t *testing.T) {
	w := openTestWAL(t)
	pub := &fakePublisher{fail: true}
	c := newTestCollector(t, pub, Options{WAL: w})
	ctx := context.Background()

	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 10, ActionType: "VIEW"}); err != nil {
		t.Fatalf("Collect(VIEW) error = %v", err)
	}
	pub.setFail(false)
	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 10, ActionType: "LIKE"}); err != nil {
		t.Fatalf("Collect(LIKE) error = %v", err)
	}
	if n := len(pub.messages()); n != 0 {
		t.Fatalf("published %d actions while an older one was pending, want 0", n)
	}
	if !c.Stats().Backlogged {
		t.Error("Backlogged = false with pending entries")
	}

	res := wal.NewRetryLoop(w, c.WALPublisher()).RetryPending(ctx)
	if res.Published != 2 {
		t.Fatalf("RetryPending() = %+v, want 2 published", res)
	}

	msgs := pub.messages()
	var order []models.ActionType
	state := aggregator.NewState(aggregator.Options{})
	for i := range msgs {
		order = append(order, msgs[i].action.ActionType)
		state.Apply(&msgs[i].action)
	}
	if len(order) != 2 || order[0] != models.ActionView || order[1] != models.ActionLike {
		t.Fatalf("stream order = %v, want [VIEW LIKE]", order)
	}
	if got, _ := state.Weight(10, 1); got != 1.0 {
		t.Errorf("folded weight = %v, want 1.0 from the later LIKE", got)
	}

	// With the backlog drained the next action goes straight out.
	if err := c.Collect(ctx, &models.UserAction{UserID: 1, EventID: 11, ActionType: "VIEW"}); err != nil {
		t.Fatalf("Collect() after drain error = %v", err)
	}
	if n := len(pub.messages()); n != 3 {
		t.Errorf("published %d, want 3 once the backlog drained", n)
	}
	if c.Stats().Backlogged {
		t.Error("Backlogged = true after the WAL drained")
	}
}

func TestNew_PendingEntriesStartBacklogged(t *testing.T) {
	w := openTestWAL(t)
	ctx := context.Background()
	if _, err := w.Write(ctx, &models.UserAction{UserID: 2, EventID: 20, ActionType: models.ActionView, Timestamp: fixedNow}); err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	c := newTestCollector(t, pub, Options{WAL: w})
	if !c.Stats().Backlogged {
		t.Fatal("collector over a WAL with pending entries should start backlogged")
	}
	if err := c.Collect(ctx, &models.UserAction{UserID: 2, EventID: 20, ActionType: "LIKE"}); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if n := len(pub.messages()); n != 0 {
		t.Errorf("published %d ahead of recovered entries, want 0", n)
	}
}

func TestCollect_EventProcessorPublisher(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })

	cfg := eventprocessor.DefaultPublisherConfig("nats://unused:4222")
	pub, err := eventprocessor.NewPublisherFrom(ps, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	msgs, err := ps.Subscribe(ctx, pub.ActionSubject())
	if err != nil {
		t.Fatal(err)
	}

	c := newTestCollector(t, pub, Options{WAL: openTestWAL(t)})
	if err := c.Collect(WithTransport(ctx, TransportHTTP), &models.UserAction{UserID: 3, EventID: 30, ActionType: "view"}); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		action, err := eventprocessor.NewSerializer().UnmarshalAction(msg.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if action.EventID != 30 || action.ActionType != models.ActionView {
			t.Errorf("decoded %+v", action)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestTransportFrom(t *testing.T) {
	if got := transportFrom(context.Background()); got != "internal" {
		t.Errorf("default transport = %q", got)
	}
	if got := transportFrom(WithTransport(context.Background(), TransportGRPC)); got != TransportGRPC {
		t.Errorf("transport = %q", got)
	}
}
