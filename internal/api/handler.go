// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"context"
	"time"

	"github.com/tomtom215/tandem/internal/models"
)

// ActionCollector accepts ingested actions. It is implemented by *collector.Collector.
type ActionCollector interface {
	Collect(ctx context.Context, action *models.UserAction) error
}

// Recommender answers the ranking queries. It is implemented by *recommend.Service.
type Recommender interface {
	GetSimilarEvents(ctx context.Context, eventID, userID int64, maxResults int) ([]models.RecommendedEvent, error)
	GetRecommendationsForUser(ctx context.Context, userID int64, maxResults int) ([]models.RecommendedEvent, error)
	GetInteractionsCount(ctx context.Context, eventIDs []int64) ([]models.RecommendedEvent, error)
}

// Pinger checks a dependency. It is implemented by *recommend.Service and
// *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports broker connectivity. It is implemented by *nats.Conn.
type ConnectionChecker interface {
	IsConnected() bool
}

// StatsFunc returns a JSON-encodable snapshot for the stats endpoint.
type StatsFunc func() interface{}

// Dependencies are the components the handlers call. Nil components leave
// their routes unmounted and their readiness checks skipped.
type Dependencies struct {
	Roles       []string
	Collector   ActionCollector
	Recommender Recommender
	Store       Pinger
	NATS        ConnectionChecker

	// Stats are reported under their key by GET /api/v1/health/stats.
	Stats map[string]StatsFunc
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.Stats == nil {
		deps.Stats = map[string]StatsFunc{}
	}
	return &Handler{
		deps:      deps,
		startTime: time.Now(),
	}
}
