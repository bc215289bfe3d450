// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package aggregator maintains the online co-occurrence similarity matrix.
//
// State folds the ordered action stream into three tables:
//
//	weight[e][u]    the weight user u currently holds for event e
//	sumWeight[e]    Σ_u weight[e][u]
//	sumMin[lo][hi]  Σ_u min(weight[lo][u], weight[hi][u]) for lo < hi
//
// and emits, for every action, the new score of each pair the action touched:
//
//	score(lo, hi) = sumMin[lo][hi] / (sqrt(sumWeight[lo]) + sqrt(sumWeight[hi]))
//
// Every update costs O(events the acting user has touched). The tables are a
// pure function of the current weights, so replaying the stream from the
// beginning after a restart rebuilds exactly the same state.
package aggregator

import (
	"math"
	"time"

	"github.com/tomtom215/tandem/internal/models"
)

// Options tune the update rule.
type Options struct {
	// KeepMaxWeight keeps the highest weight a user ever gave an event. When
	// false the latest action's weight replaces the recorded one, even if lower.
	KeepMaxWeight bool
}

type pair struct {
	lo, hi int64
}

// State is the aggregator's in-memory matrix. It is owned by a single
// goroutine and is not safe for concurrent use.
type State struct {
	opts Options

	weight     map[int64]map[int64]float64 // event -> user -> weight
	sumWeight  map[int64]float64
	sumMin     map[pair]float64
	userEvents map[int64]map[int64]struct{} // user -> events with a recorded weight

	applied int64
}

// NewState returns an empty state.
func NewState(opts Options) *State {
	return &State{
		opts:       opts,
		weight:     make(map[int64]map[int64]float64),
		sumWeight:  make(map[int64]float64),
		sumMin:     make(map[pair]float64),
		userEvents: make(map[int64]map[int64]struct{}),
	}
}

// Apply folds one action into the state and returns the updated score of
// every pair (action.EventID, e') where the acting user already holds a
// weight for e'. Each pair appears at most once. The very first action, and
// any action by a user with no other events, emits nothing.
func (s *State) Apply(action *models.UserAction) []models.SimilarityDelta {
	s.applied++
	e, u := action.EventID, action.UserID
	newW := action.ActionType.Weight()

	if len(s.weight) == 0 {
		s.setWeight(e, u, newW)
		s.sumWeight[e] += newW
		return nil
	}

	oldW := s.weight[e][u]
	if s.opts.KeepMaxWeight && oldW > newW {
		newW = oldW
	}

	s.sumWeight[e] += newW - oldW

	var deltas []models.SimilarityDelta
	for other := range s.userEvents[u] {
		if other == e {
			continue
		}
		otherW := s.weight[other][u]
		lo, hi := models.Canonical(e, other)
		p := pair{lo, hi}

		if deltaMin := math.Min(newW, otherW) - math.Min(oldW, otherW); deltaMin != 0 {
			s.sumMin[p] += deltaMin
		}

		deltas = append(deltas, models.SimilarityDelta{
			EventA:    lo,
			EventB:    hi,
			Score:     s.score(p),
			Timestamp: deltaTime(action.Timestamp),
		})
	}

	s.setWeight(e, u, newW)
	return deltas
}

func (s *State) setWeight(e, u int64, w float64) {
	users, ok := s.weight[e]
	if !ok {
		users = make(map[int64]float64)
		s.weight[e] = users
	}
	users[u] = w

	events, ok := s.userEvents[u]
	if !ok {
		events = make(map[int64]struct{})
		s.userEvents[u] = events
	}
	events[e] = struct{}{}
}

// score is 0 when both events carry zero total weight.
func (s *State) score(p pair) float64 {
	denom := math.Sqrt(s.sumWeight[p.lo]) + math.Sqrt(s.sumWeight[p.hi])
	if denom == 0 {
		return 0
	}
	return s.sumMin[p] / denom
}

func deltaTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Weight returns weight[event][user] and whether it is recorded.
func (s *State) Weight(event, user int64) (float64, bool) {
	w, ok := s.weight[event][user]
	return w, ok
}

// SumWeight returns sumWeight[event].
func (s *State) SumWeight(event int64) float64 {
	return s.sumWeight[event]
}

// SumMin returns sumMin for the unordered pair (a, b).
func (s *State) SumMin(a, b int64) float64 {
	lo, hi := models.Canonical(a, b)
	return s.sumMin[pair{lo, hi}]
}

// Score returns the current score of the unordered pair (a, b).
func (s *State) Score(a, b int64) float64 {
	lo, hi := models.Canonical(a, b)
	return s.score(pair{lo, hi})
}

// Events returns the ids of every event with at least one recorded weight.
func (s *State) Events() []int64 {
	out := make([]int64, 0, len(s.weight))
	for e := range s.weight {
		out = append(out, e)
	}
	return out
}

// Snapshot summarizes the state's size.
type Snapshot struct {
	Events         int   `json:"events"`
	Users          int   `json:"users"`
	Pairs          int   `json:"pairs"`
	ActionsApplied int64 `json:"actions_applied"`
}

// Snapshot returns the state's current size.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Events:         len(s.weight),
		Users:          len(s.userEvents),
		Pairs:          len(s.sumMin),
		ActionsApplied: s.applied,
	}
}
