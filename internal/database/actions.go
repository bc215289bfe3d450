// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tandem/internal/metrics"
	"github.com/tomtom215/tandem/internal/models"
)

const insertActionSQL = `INSERT INTO user_action (user_id, event_id, action_type, action_date) VALUES (?, ?, ?, ?)`

// PersistActions appends the actions in one transaction. Duplicates are kept;
// the table is an append-only log of interaction facts.
func (db *DB) PersistActions(ctx context.Context, actions []models.UserAction) (err error) {
	if len(actions) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("persist_actions", time.Since(start), err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin persist actions", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertActionSQL)
	if err != nil {
		return unavailable("prepare persist actions", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range actions {
		a := &actions[i]
		if _, err = stmt.ExecContext(ctx, a.UserID, a.EventID, string(a.ActionType), a.Timestamp.UTC()); err != nil {
			return unavailable(fmt.Sprintf("insert action user=%d event=%d", a.UserID, a.EventID), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable("commit persist actions", err)
	}
	metrics.RowsPersisted.WithLabelValues("user_action").Add(float64(len(actions)))
	return nil
}
