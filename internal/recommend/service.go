// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

// ErrStoreUnavailable is returned when the store cannot answer a query,
// including when the breaker in front of it is open.
var ErrStoreUnavailable = errors.New("recommendation store unavailable")

// ErrNilStore is returned by NewService when no store is given.
var ErrNilStore = errors.New("recommend: store is nil")

// Query names used in logs and metrics.
const (
	QuerySimilarEvents     = "similar_events"
	QueryRecommendations   = "recommendations"
	QueryInteractionsCount = "interactions_count"
)

// weightedTypes fixes the summation order so totals are reproducible.
// Other action types weigh 0.
var weightedTypes = []models.ActionType{models.ActionView, models.ActionRegister, models.ActionLike}

// Service answers ranking queries. It is safe for concurrent use.
type Service struct {
	store   Store
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  zerolog.Logger

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// ServiceStats are request counters exposed on the stats endpoint.
type ServiceStats struct {
	Requests     int64  `json:"requests"`
	Errors       int64  `json:"errors"`
	BreakerState string `json:"breaker_state"`
}

// NewService builds a Service. breaker may be nil to call the store directly.
func NewService(store Store, breaker *gobreaker.CircuitBreaker[interface{}]) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &Service{
		store:   store,
		breaker: breaker,
		logger:  logging.WithComponent("recommend"),
	}, nil
}

// call runs one store operation behind the breaker. A failure after ctx is
// done belongs to the caller: it is returned without ErrStoreUnavailable and
// is not counted against the store.
func call[T any](ctx context.Context, s *Service, op string, fn func() (T, error)) (T, error) {
	res, err := eventprocessor.ExecuteWithBreakerContext(ctx, s.breaker, func() (interface{}, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil && !eventprocessor.IsBreakerOpen(err) {
			return zero, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return zero, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return res.(T), nil
}

func (s *Service) begin(ctx context.Context, query string) (zerolog.Logger, time.Time) {
	s.requestCount.Add(1)
	logger := s.logger.With().Str("query", query).Logger()
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		logger = logger.With().Str("request_id", rid).Logger()
	}
	return logger, time.Now()
}

func (s *Service) finish(logger *zerolog.Logger, query string, start time.Time, n int, err error) {
	if err != nil {
		s.errorCount.Add(1)
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Query failed")
		return
	}
	metrics.RecommendationsServed.WithLabelValues(query).Add(float64(n))
	logger.Debug().Int("results", n).Dur("duration", time.Since(start)).Msg("Query served")
}

// GetSimilarEvents returns the stored pairs touching eventID as the counterpart
// event and pair score, excluding counterparts among the user's maxResults
// most recently touched events (eventID itself does not take a slot). Results
// are ordered by score ascending and are not truncated; maxResults <= 0 yields
// an empty result.
func (s *Service) GetSimilarEvents(ctx context.Context, eventID, userID int64, maxResults int) (out []models.RecommendedEvent, err error) {
	logger, start := s.begin(ctx, QuerySimilarEvents)
	defer func() { s.finish(&logger, QuerySimilarEvents, start, len(out), err) }()

	out = []models.RecommendedEvent{}
	if maxResults <= 0 {
		return out, nil
	}

	interacted, err := call(ctx, s, "interacted events", func() ([]int64, error) {
		return s.store.RecentEvents(ctx, userID, maxResults+1)
	})
	if err != nil {
		return nil, err
	}
	exclude := make(map[int64]struct{}, len(interacted))
	for _, id := range interacted {
		if id != eventID && len(exclude) < maxResults {
			exclude[id] = struct{}{}
		}
	}

	rows, err := call(ctx, s, "similarities touching", func() ([]models.SimilarityDelta, error) {
		return s.store.SimilaritiesTouching(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}

	for i := range rows {
		other := rows[i].Other(eventID)
		if other == 0 {
			continue
		}
		if _, seen := exclude[other]; seen {
			continue
		}
		out = append(out, models.RecommendedEvent{EventID: other, Score: rows[i].Score})
	}
	return out, nil
}

// GetRecommendationsForUser predicts a score for events similar to the user's
// most recent maxResults events. Output follows candidate order, which is
// pair score descending.
func (s *Service) GetRecommendationsForUser(ctx context.Context, userID int64, maxResults int) (out []models.RecommendedEvent, err error) {
	logger, start := s.begin(ctx, QueryRecommendations)
	defer func() { s.finish(&logger, QueryRecommendations, start, len(out), err) }()

	out = []models.RecommendedEvent{}
	if maxResults <= 0 {
		return out, nil
	}

	recent, err := call(ctx, s, "recent events", func() ([]int64, error) {
		return s.store.RecentEvents(ctx, userID, maxResults)
	})
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		logger.Debug().Int64("user_id", userID).Msg("User has no history")
		return out, nil
	}

	candidates, err := call(ctx, s, "similar candidates", func() ([]models.RecommendedEvent, error) {
		return s.store.SimilarCandidates(ctx, recent, maxResults)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return out, nil
	}

	weights, err := call(ctx, s, "user event weights", func() (map[int64]float64, error) {
		return s.store.UserEventWeights(ctx, userID, recent)
	})
	if err != nil {
		return nil, err
	}

	recentSet := make(map[int64]struct{}, len(recent))
	for _, id := range recent {
		recentSet[id] = struct{}{}
	}

	for _, c := range candidates {
		neighbors, err := call(ctx, s, "nearest neighbors", func() ([]models.RecommendedEvent, error) {
			return s.store.NearestNeighbors(ctx, c.EventID, maxResults)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, models.RecommendedEvent{
			EventID: c.EventID,
			Score:   predict(neighbors, recentSet, weights),
		})
	}
	return out, nil
}

// predict computes Σ sim·w / Σ sim over the neighbours that are in recent.
func predict(neighbors []models.RecommendedEvent, recent map[int64]struct{}, weights map[int64]float64) float64 {
	var weighted, simSum float64
	for _, n := range neighbors {
		if _, ok := recent[n.EventID]; !ok {
			continue
		}
		weighted += n.Score * weights[n.EventID]
		simSum += n.Score
	}
	if simSum == 0 {
		return 0
	}
	return weighted / simSum
}

// GetInteractionsCount returns, per requested event and in request order, the
// sum of the weights of all recorded actions on it. Events without actions score 0.
func (s *Service) GetInteractionsCount(ctx context.Context, eventIDs []int64) (out []models.RecommendedEvent, err error) {
	logger, start := s.begin(ctx, QueryInteractionsCount)
	defer func() { s.finish(&logger, QueryInteractionsCount, start, len(out), err) }()

	out = make([]models.RecommendedEvent, 0, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	unique := make([]int64, 0, len(eventIDs))
	seen := make(map[int64]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	counts, err := call(ctx, s, "action type counts", func() (map[int64]map[models.ActionType]int64, error) {
		return s.store.ActionTypeCounts(ctx, unique)
	})
	if err != nil {
		return nil, err
	}

	for _, id := range eventIDs {
		var total float64
		byType := counts[id]
		for _, actionType := range weightedTypes {
			total += float64(byType[actionType]) * actionType.Weight()
		}
		out = append(out, models.RecommendedEvent{EventID: id, Score: total})
	}
	return out, nil
}

// Ping checks the store without going through the breaker.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Stats returns request counters and the breaker state.
func (s *Service) Stats() ServiceStats {
	state := "disabled"
	if s.breaker != nil {
		state = eventprocessor.CircuitBreakerState(s.breaker)
	}
	return ServiceStats{
		Requests:     s.requestCount.Load(),
		Errors:       s.errorCount.Load(),
		BreakerState: state,
	}
}
