// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package recommend

import (
	"context"

	"github.com/tomtom215/tandem/internal/models"
)

// Store is the read side of the similarity and action store.
// It is implemented by *database.DB.
type Store interface {
	// SimilaritiesTouching returns every pair containing eventID, ascending by score.
	SimilaritiesTouching(ctx context.Context, eventID int64) ([]models.SimilarityDelta, error)

	// RecentEvents returns up to limit distinct events, most recent first.
	RecentEvents(ctx context.Context, userID int64, limit int) ([]int64, error)

	// SimilarCandidates returns events similar to eventIDs, excluding eventIDs,
	// score descending.
	SimilarCandidates(ctx context.Context, eventIDs []int64, limit int) ([]models.RecommendedEvent, error)

	// NearestNeighbors returns the most similar events to eventID, score descending.
	NearestNeighbors(ctx context.Context, eventID int64, limit int) ([]models.RecommendedEvent, error)

	// UserEventWeights returns the highest action weight of the user per event.
	UserEventWeights(ctx context.Context, userID int64, eventIDs []int64) (map[int64]float64, error)

	// ActionTypeCounts returns action counts per event and action type.
	ActionTypeCounts(ctx context.Context, eventIDs []int64) (map[int64]map[models.ActionType]int64, error)

	Ping(ctx context.Context) error
}
