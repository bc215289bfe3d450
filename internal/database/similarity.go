// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

const upsertSimilaritySQL = `
	INSERT INTO event_similarity (event_a, event_b, score, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (event_a, event_b) DO UPDATE SET
		score = EXCLUDED.score,
		updated_at = EXCLUDED.updated_at`

const maxUpsertAttempts = 3

// PersistSimilarities writes the latest score of every pair in the batch. The
// batch is collapsed to the last delta per pair first, so within one call the
// later delta wins, and across calls the later call wins.
func (db *DB) PersistSimilarities(ctx context.Context, deltas []models.SimilarityDelta) (err error) {
	if len(deltas) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("persist_similarities", time.Since(start), err) }()

	for i := range deltas {
		if verr := deltas[i].Validate(); verr != nil {
			return fmt.Errorf("%w: %w", ErrNonCanonicalPair, verr)
		}
	}
	rows := collapseDeltas(deltas)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		err = db.upsertSimilarities(ctx, rows)
		if err == nil || !isTransactionConflict(err) {
			break
		}
		logging.Debug().Int("attempt", attempt).Err(err).Msg("Similarity upsert conflicted, retrying")
		select {
		case <-ctx.Done():
			return unavailable("persist similarities", ctx.Err())
		case <-time.After(time.Duration(attempt*50) * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}

	metrics.RowsPersisted.WithLabelValues("event_similarity").Add(float64(len(rows)))
	return nil
}

func (db *DB) upsertSimilarities(ctx context.Context, rows []models.SimilarityDelta) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin persist similarities", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSimilaritySQL)
	if err != nil {
		return unavailable("prepare persist similarities", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range rows {
		d := &rows[i]
		ts := d.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err = stmt.ExecContext(ctx, d.EventA, d.EventB, d.Score, ts.UTC()); err != nil {
			return unavailable(fmt.Sprintf("upsert similarity (%d, %d)", d.EventA, d.EventB), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable("commit persist similarities", err)
	}
	return nil
}

// collapseDeltas keeps the last delta per pair, ordered by first appearance.
func collapseDeltas(deltas []models.SimilarityDelta) []models.SimilarityDelta {
	type key struct{ a, b int64 }
	index := make(map[key]int, len(deltas))
	out := make([]models.SimilarityDelta, 0, len(deltas))
	for _, d := range deltas {
		k := key{d.EventA, d.EventB}
		if i, ok := index[k]; ok {
			out[i] = d
			continue
		}
		index[k] = len(out)
		out = append(out, d)
	}
	return out
}
