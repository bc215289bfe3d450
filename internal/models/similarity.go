// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package models

import (
	"fmt"
	"time"
)

// SimilarityDelta is the latest similarity score of an unordered event pair,
// stored canonically with EventA < EventB.
type SimilarityDelta struct {
	EventA    int64     `json:"event_a"`
	EventB    int64     `json:"event_b"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Canonical orders a pair so the smaller id comes first.
func Canonical(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Validate checks the canonical ordering and ids.
func (d *SimilarityDelta) Validate() error {
	if d.EventA <= 0 || d.EventB <= 0 {
		return fmt.Errorf("event ids must be positive, got (%d, %d)", d.EventA, d.EventB)
	}
	if d.EventA >= d.EventB {
		return fmt.Errorf("pair (%d, %d) is not canonical", d.EventA, d.EventB)
	}
	return nil
}

// Other returns the counterpart of eventID in the pair, or 0 if eventID is not part of it.
func (d *SimilarityDelta) Other(eventID int64) int64 {
	switch eventID {
	case d.EventA:
		return d.EventB
	case d.EventB:
		return d.EventA
	default:
		return 0
	}
}

// RecommendedEvent is one item of a ranking query result.
type RecommendedEvent struct {
	EventID int64   `json:"event_id"`
	Score   float64 `json:"score"`
}
