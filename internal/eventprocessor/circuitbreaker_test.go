// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteWithBreakerContext(t *testing.T) {
	errStore := errors.New("store down")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name      string
		ctx       context.Context
		err       error
		wantState string
	}{
		{"store failures trip", context.Background(), errStore, "open"},
		{"failures after cancel do not trip", cancelled, errStore, "closed"},
		{"bare cancellation does not trip", context.Background(), context.Canceled, "closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCircuitBreakerConfig("breaker-" + tt.name)
			cfg.FailureThreshold = 2
			cfg.Timeout = time.Minute
			cb := NewCircuitBreaker(cfg)

			for i := 0; i < 4; i++ {
				_, err := ExecuteWithBreakerContext(tt.ctx, cb, func() (interface{}, error) {
					return nil, tt.err
				})
				if err == nil {
					t.Fatal("expected an error")
				}
				if tt.wantState == "closed" && !errors.Is(err, tt.err) {
					t.Errorf("error = %v, want it to wrap %v", err, tt.err)
				}
			}
			if got := CircuitBreakerState(cb); got != tt.wantState {
				t.Errorf("state = %q, want %q", got, tt.wantState)
			}
		})
	}
}

func TestExecuteWithBreakerContextNilBreaker(t *testing.T) {
	v, err := ExecuteWithBreakerContext(context.Background(), nil, func() (interface{}, error) {
		return 7, nil
	})
	if err != nil || v.(int) != 7 {
		t.Errorf("got (%v, %v), want (7, nil)", v, err)
	}
}
