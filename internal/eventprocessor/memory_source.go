// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"context"
	"sync"
	"time"
)

// MemorySource is an in-process RecordSource. Nak'ed records go back to the
// front of the queue. It backs tests and single-process tooling.
type MemorySource struct {
	mu       sync.Mutex
	pending  []*MemoryRecord
	acked    []*MemoryRecord
	notify   chan struct{}
	fetchErr error
	fetches  int
	requeued int
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{notify: make(chan struct{}, 1)}
}

// Push appends raw records.
func (s *MemorySource) Push(data ...[]byte) {
	s.mu.Lock()
	for _, d := range data {
		s.pending = append(s.pending, &MemoryRecord{data: d, src: s})
	}
	s.mu.Unlock()
	s.wake()
}

// FailNextFetches makes the next n fetches return err.
func (s *MemorySource) FailNextFetches(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
	s.fetches = n
}

func (s *MemorySource) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Fetch implements RecordSource.
func (s *MemorySource) Fetch(ctx context.Context, max int, wait time.Duration) ([]Record, error) {
	if batch, ok, err := s.take(max); ok {
		return batch, err
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, nil
	case <-t.C:
		return nil, nil
	case <-s.notify:
	}
	batch, _, err := s.take(max)
	return batch, err
}

func (s *MemorySource) take(max int) ([]Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = 0
	if s.fetches > 0 {
		s.fetches--
		return nil, true, transient("fetch", s.fetchErr)
	}
	if len(s.pending) == 0 {
		return nil, false, nil
	}
	n := len(s.pending)
	if n > max {
		n = max
	}
	batch := make([]Record, n)
	for i := 0; i < n; i++ {
		batch[i] = s.pending[i]
	}
	s.pending = s.pending[n:]
	return batch, true, nil
}

// Pending returns the number of records not yet fetched.
func (s *MemorySource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Acked returns the payloads acknowledged so far, in ack order.
func (s *MemorySource) Acked() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.acked))
	for i, r := range s.acked {
		out[i] = r.data
	}
	return out
}

// MemoryRecord is a Record held by a MemorySource.
type MemoryRecord struct {
	data  []byte
	src   *MemorySource
	acked bool
}

// Data implements Record.
func (r *MemoryRecord) Data() []byte { return r.data }

// Ack implements Record.
func (r *MemoryRecord) Ack() error {
	r.src.mu.Lock()
	defer r.src.mu.Unlock()
	if !r.acked {
		r.acked = true
		r.src.acked = append(r.src.acked, r)
	}
	return nil
}

// Nak implements Record. Records of one batch are nak'ed in order, so they
// are re-queued in order ahead of anything not yet fetched.
func (r *MemoryRecord) Nak() error {
	r.src.mu.Lock()
	idx := r.src.requeued
	r.src.pending = append(r.src.pending, nil)
	copy(r.src.pending[idx+1:], r.src.pending[idx:])
	r.src.pending[idx] = r
	r.src.requeued++
	r.src.mu.Unlock()
	r.src.wake()
	return nil
}

var _ RecordSource = (*MemorySource)(nil)
