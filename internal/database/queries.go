// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

// StoreStats summarises table sizes for the stats endpoint.
type StoreStats struct {
	Actions      int64 `json:"actions"`
	Similarities int64 `json:"similarities"`
	Users        int64 `json:"users"`
	Events       int64 `json:"events"`
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// query runs a read statement with the configured timeout and records its duration.
func (db *DB) query(ctx context.Context, op, q string, args []any, scan func(*sql.Rows) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(op, time.Since(start), err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return unavailable(op, err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		if err = scan(rows); err != nil {
			return unavailable(op, err)
		}
	}
	if err = rows.Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func scanRecommended(dst *[]models.RecommendedEvent) func(*sql.Rows) error {
	return func(rows *sql.Rows) error {
		var r models.RecommendedEvent
		if err := rows.Scan(&r.EventID, &r.Score); err != nil {
			return err
		}
		*dst = append(*dst, r)
		return nil
	}
}

// SimilaritiesTouching returns every stored pair that contains eventID.
func (db *DB) SimilaritiesTouching(ctx context.Context, eventID int64) ([]models.SimilarityDelta, error) {
	const q = `
		SELECT event_a, event_b, score, updated_at
		FROM event_similarity
		WHERE event_a = ? OR event_b = ?
		ORDER BY score ASC, event_a ASC, event_b ASC`

	var out []models.SimilarityDelta
	err := db.query(ctx, "similarities_touching", q, []any{eventID, eventID}, func(rows *sql.Rows) error {
		var d models.SimilarityDelta
		if err := rows.Scan(&d.EventA, &d.EventB, &d.Score, &d.Timestamp); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

// RecentEvents returns up to limit distinct events of the user, most recently
// touched first. Ties on the timestamp are broken by event id.
func (db *DB) RecentEvents(ctx context.Context, userID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT event_id
		FROM user_action
		WHERE user_id = ?
		GROUP BY event_id
		ORDER BY MAX(action_date) DESC, event_id ASC
		LIMIT ?`

	var out []int64
	err := db.query(ctx, "recent_events", q, []any{userID, limit}, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		out = append(out, id)
		return nil
	})
	return out, err
}

// SimilarCandidates returns events similar to any of the given events, taken
// from both pair directions, excluding the given events themselves. An event
// reached through several pairs keeps its highest score. Results are ordered
// by score descending.
func (db *DB) SimilarCandidates(ctx context.Context, eventIDs []int64, limit int) ([]models.RecommendedEvent, error) {
	if len(eventIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	in := placeholders(len(eventIDs))
	q := fmt.Sprintf(`
		WITH touching AS (
			SELECT event_b AS event_id, score FROM event_similarity WHERE event_a IN (%[1]s)
			UNION ALL
			SELECT event_a AS event_id, score FROM event_similarity WHERE event_b IN (%[1]s)
		)
		SELECT event_id, MAX(score) AS best
		FROM touching
		WHERE event_id NOT IN (%[1]s)
		GROUP BY event_id
		ORDER BY best DESC, event_id ASC
		LIMIT ?`, in)

	ids := int64Args(eventIDs)
	args := make([]any, 0, 3*len(ids)+1)
	args = append(args, ids...)
	args = append(args, ids...)
	args = append(args, ids...)
	args = append(args, limit)

	var out []models.RecommendedEvent
	err := db.query(ctx, "similar_candidates", q, args, scanRecommended(&out))
	return out, err
}

// NearestNeighbors returns the limit most similar events to eventID, score descending.
func (db *DB) NearestNeighbors(ctx context.Context, eventID int64, limit int) ([]models.RecommendedEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT CASE WHEN event_a = ? THEN event_b ELSE event_a END AS neighbor, score
		FROM event_similarity
		WHERE event_a = ? OR event_b = ?
		ORDER BY score DESC, neighbor ASC
		LIMIT ?`

	var out []models.RecommendedEvent
	err := db.query(ctx, "nearest_neighbors", q, []any{eventID, eventID, eventID, limit}, scanRecommended(&out))
	return out, err
}

// UserEventWeights returns, per event, the highest action weight the user has
// on it. Events without actions are absent from the result.
func (db *DB) UserEventWeights(ctx context.Context, userID int64, eventIDs []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	q := fmt.Sprintf(`
		SELECT DISTINCT event_id, action_type
		FROM user_action
		WHERE user_id = ? AND event_id IN (%s)`, placeholders(len(eventIDs)))

	args := append([]any{userID}, int64Args(eventIDs)...)
	err := db.query(ctx, "user_event_weights", q, args, func(rows *sql.Rows) error {
		var (
			eventID    int64
			actionType string
		)
		if err := rows.Scan(&eventID, &actionType); err != nil {
			return err
		}
		w := models.ActionType(actionType).Weight()
		if cur, ok := out[eventID]; !ok || w > cur {
			out[eventID] = w
		}
		return nil
	})
	return out, err
}

// ActionTypeCounts returns the number of actions per event and action type.
func (db *DB) ActionTypeCounts(ctx context.Context, eventIDs []int64) (map[int64]map[models.ActionType]int64, error) {
	out := make(map[int64]map[models.ActionType]int64, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	q := fmt.Sprintf(`
		SELECT event_id, action_type, COUNT(*)
		FROM user_action
		WHERE event_id IN (%s)
		GROUP BY event_id, action_type`, placeholders(len(eventIDs)))

	err := db.query(ctx, "action_type_counts", q, int64Args(eventIDs), func(rows *sql.Rows) error {
		var (
			eventID    int64
			actionType string
			count      int64
		)
		if err := rows.Scan(&eventID, &actionType, &count); err != nil {
			return err
		}
		byType, ok := out[eventID]
		if !ok {
			byType = make(map[models.ActionType]int64)
			out[eventID] = byType
		}
		byType[models.ActionType(actionType)] = count
		return nil
	})
	return out, err
}

// Stats returns row counts of the store tables.
func (db *DB) Stats(ctx context.Context) (StoreStats, error) {
	const q = `
		SELECT
			(SELECT COUNT(*) FROM user_action),
			(SELECT COUNT(*) FROM event_similarity),
			(SELECT COUNT(DISTINCT user_id) FROM user_action),
			(SELECT COUNT(DISTINCT event_id) FROM user_action)`

	var s StoreStats
	err := db.query(ctx, "stats", q, nil, func(rows *sql.Rows) error {
		return rows.Scan(&s.Actions, &s.Similarities, &s.Users, &s.Events)
	})
	return s, err
}
